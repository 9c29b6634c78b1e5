package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"paes_math_backend/pkg/monitoring"
	"paes_math_backend/pkg/tracing"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"

	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock 与供应商无关的消息片段
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolUseID string          `json:"toolUseId,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"isError,omitempty"`
}

type LLMMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func TextMessage(role, text string) LLMMessage {
	return LLMMessage{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ToolDefinition InputSchema 为 JSON Schema
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type LLMRequest struct {
	System    string
	Messages  []LLMMessage
	Tools     []ToolDefinition
	MaxTokens int
}

type LLMResponse struct {
	Content    []ContentBlock
	StopReason string
}

// Text 拼接所有文本片段
func (r *LLMResponse) Text() string {
	var parts []string
	for _, b := range r.Content {
		if b.Type == BlockText && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r *LLMResponse) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

// LLMClient 大模型调用接口，诊断与辅导服务只依赖它
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}

// ---------------- Anthropic ----------------

type AnthropicClient struct {
	BaseURL   string
	APIKey    string
	Version   string
	Model     string
	MaxTokens int
	HTTP      *http.Client
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []ToolDefinition   `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	body := anthropicRequest{
		Model:     c.Model,
		MaxTokens: firstPositive(req.MaxTokens, c.MaxTokens, 1024),
		System:    req.System,
		Tools:     req.Tools,
	}
	for _, m := range req.Messages {
		am := anthropicMessage{Role: m.Role}
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if strings.TrimSpace(b.Text) == "" {
					continue
				}
				am.Content = append(am.Content, anthropicBlock{Type: BlockText, Text: b.Text})
			case BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				am.Content = append(am.Content, anthropicBlock{Type: BlockToolUse, ID: b.ToolUseID, Name: b.ToolName, Input: input})
			case BlockToolResult:
				am.Content = append(am.Content, anthropicBlock{Type: BlockToolResult, ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
			}
		}
		// Messages API 不接受空 content，相邻同角色消息合并
		if len(am.Content) == 0 {
			continue
		}
		if n := len(body.Messages); n > 0 && body.Messages[n-1].Role == am.Role {
			body.Messages[n-1].Content = append(body.Messages[n-1].Content, am.Content...)
			continue
		}
		body.Messages = append(body.Messages, am)
	}

	headers := map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": c.Version,
	}
	raw, err := postJSON(ctx, c.HTTP, strings.TrimRight(c.BaseURL, "/")+"/v1/messages", headers, body, "anthropic")
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode anthropic response: %v", util.ErrLLMUnavailable, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: anthropic %s: %s", util.ErrLLMUnavailable, resp.Error.Type, resp.Error.Message)
	}

	out := &LLMResponse{StopReason: resp.StopReason}
	for _, b := range resp.Content {
		switch b.Type {
		case BlockText:
			out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: b.Text})
		case BlockToolUse:
			out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, Input: b.Input})
		}
	}
	return out, nil
}

// ---------------- OpenAI ----------------

type OpenAIClient struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	HTTP      *http.Client
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func strPtr(s string) *string { return &s }

// toOpenAIMessages tool_result 片段拆成独立的 role=tool 消息
func toOpenAIMessages(system string, msgs []LLMMessage) []openAIMessage {
	var out []openAIMessage
	if system != "" {
		out = append(out, openAIMessage{Role: "system", Content: strPtr(system)})
	}
	for _, m := range msgs {
		var texts []string
		var calls []openAIToolCall
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				texts = append(texts, b.Text)
			case BlockToolUse:
				call := openAIToolCall{ID: b.ToolUseID, Type: "function"}
				call.Function.Name = b.ToolName
				call.Function.Arguments = string(b.Input)
				if call.Function.Arguments == "" {
					call.Function.Arguments = "{}"
				}
				calls = append(calls, call)
			case BlockToolResult:
				content := b.Content
				if b.IsError {
					content = "ERROR: " + content
				}
				out = append(out, openAIMessage{Role: "tool", ToolCallID: b.ToolUseID, Content: strPtr(content)})
			}
		}
		if len(texts) == 0 && len(calls) == 0 {
			continue
		}
		msg := openAIMessage{Role: m.Role, ToolCalls: calls}
		if len(texts) > 0 {
			msg.Content = strPtr(strings.Join(texts, "\n\n"))
		}
		out = append(out, msg)
	}
	return out
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	body := openAIRequest{
		Model:     c.Model,
		MaxTokens: firstPositive(req.MaxTokens, c.MaxTokens, 1024),
		Messages:  toOpenAIMessages(req.System, req.Messages),
	}
	for _, t := range req.Tools {
		tool := openAITool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.InputSchema
		body.Tools = append(body.Tools, tool)
	}

	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	raw, err := postJSON(ctx, c.HTTP, strings.TrimRight(c.BaseURL, "/")+"/chat/completions", headers, body, "openai")
	if err != nil {
		return nil, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode openai response: %v", util.ErrLLMUnavailable, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: openai: %s", util.ErrLLMUnavailable, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", util.ErrLLMUnavailable)
	}

	choice := resp.Choices[0]
	out := &LLMResponse{}
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: *choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		input := json.RawMessage(call.Function.Arguments)
		if !json.Valid(input) {
			input = json.RawMessage(`{}`)
		}
		out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ToolUseID: call.ID, ToolName: call.Function.Name, Input: input})
	}

	switch choice.FinishReason {
	case "tool_calls":
		out.StopReason = StopToolUse
	case "length":
		out.StopReason = StopMaxTokens
	default:
		out.StopReason = StopEndTurn
	}
	// 部分兼容实现 finish_reason 为 stop 但仍返回 tool_calls
	if len(choice.Message.ToolCalls) > 0 {
		out.StopReason = StopToolUse
	}
	return out, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}, provider string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", util.ErrLLMUnavailable, provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s read body: %v", util.ErrLLMUnavailable, provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.Warn("LLM provider returned error status",
			zap.String("provider", provider),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncateBytes(body, 512)))
		return nil, fmt.Errorf("%w: %s status %d", util.ErrLLMUnavailable, provider, resp.StatusCode)
	}
	return body, nil
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// ---------------- AIService ----------------

// AIService 按当前配置选择供应商，配置可在运行时热更新
type AIService struct {
	mu     sync.RWMutex
	config config.AIConfig
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{config: cfg}
}

func (s *AIService) UpdateConfig(cfg config.AIConfig) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	logger.Log.Info("AI config updated", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
}

func (s *AIService) Config() config.AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *AIService) client() (LLMClient, string) {
	cfg := s.Config()
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Provider == "openai" {
		return &OpenAIClient{
			BaseURL:   cfg.OpenAIBaseURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			HTTP:      httpClient,
		}, "openai"
	}
	return &AnthropicClient{
		BaseURL:   cfg.AnthropicBaseURL,
		APIKey:    cfg.AnthropicAPIKey,
		Version:   cfg.AnthropicVersion,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		HTTP:      httpClient,
	}, "anthropic"
}

func (s *AIService) Complete(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	client, provider := s.client()
	ctx, span := tracing.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", provider),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)))
	started := time.Now()
	resp, err := client.Complete(ctx, req)
	monitoring.ObserveLLM(provider, started, err)
	tracing.EndSpan(span, err)
	if err != nil {
		logger.Log.Error("LLM call failed", zap.String("provider", provider), zap.Error(err))
	}
	return resp, err
}

// MaxToolIterations 工具循环的最大轮数
func (s *AIService) MaxToolIterations() int {
	return firstPositive(s.Config().MaxToolIterations, 8)
}

// ---------------- Tool loop ----------------

// ToolExecutor 执行模型请求的工具，返回的字符串作为 tool_result 内容
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (string, error)
}

type ToolExecutorFunc func(ctx context.Context, name string, input json.RawMessage) (string, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	return f(ctx, name, input)
}

type ToolLoopResult struct {
	Final     *LLMResponse
	Messages  []LLMMessage // 追加了本轮所有 assistant / tool_result 消息后的完整对话
	ToolsUsed []string
}

// RunToolLoop 发送请求，只要停止原因是 tool_use 就执行工具并带着结果重发
// 工具出错时以 is_error 结果回传给模型；超过 maxIterations 次调用返回 ErrToolLoopExhausted
func RunToolLoop(ctx context.Context, client LLMClient, req LLMRequest, executor ToolExecutor, maxIterations int) (*ToolLoopResult, error) {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	messages := append([]LLMMessage(nil), req.Messages...)
	result := &ToolLoopResult{}

	for i := 0; i < maxIterations; i++ {
		req.Messages = messages
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return nil, err
		}

		// 空回复不写入历史，避免后续请求带上空的 assistant 消息
		if len(resp.Content) > 0 {
			messages = append(messages, LLMMessage{Role: RoleAssistant, Content: resp.Content})
		}
		calls := resp.ToolCalls()
		if resp.StopReason != StopToolUse || len(calls) == 0 {
			result.Final = resp
			result.Messages = messages
			return result, nil
		}

		results := make([]ContentBlock, 0, len(calls))
		for _, call := range calls {
			result.ToolsUsed = append(result.ToolsUsed, call.ToolName)
			output, err := executor.Execute(ctx, call.ToolName, call.Input)
			block := ContentBlock{Type: BlockToolResult, ToolUseID: call.ToolUseID, Content: output}
			if err != nil {
				logger.Log.Debug("Tool returned error", zap.String("tool", call.ToolName), zap.Error(err))
				block.Content = err.Error()
				block.IsError = true
			}
			results = append(results, block)
		}
		messages = append(messages, LLMMessage{Role: RoleUser, Content: results})
	}

	return nil, fmt.Errorf("%w (%d iterations)", util.ErrToolLoopExhausted, maxIterations)
}

// toolJSON 工具结果统一序列化为 JSON
func toolJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
