package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"paes_math_backend/internal/config"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunToolLoopReturnsToolErrorsToModel(t *testing.T) {
	llm := &scriptedLLM{}
	llm.push(
		toolUse("a", "echo", map[string]string{"text": "hola"}),
		toolUse("b", "broken", map[string]string{}),
		endTurn("listo"),
	)
	executor := ToolExecutorFunc(func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		if name == "broken" {
			return "", errors.New("boom")
		}
		return string(input), nil
	})

	res, err := RunToolLoop(context.Background(), llm, LLMRequest{Messages: []LLMMessage{TextMessage(RoleUser, "hi")}}, executor, 5)
	require.NoError(t, err)
	assert.Equal(t, "listo", res.Final.Text())
	assert.Equal(t, []string{"echo", "broken"}, res.ToolsUsed)
	// user, assistant, tool_result, assistant, tool_result, assistant
	require.Len(t, res.Messages, 6)

	ok := res.Messages[2].Content[0]
	assert.Equal(t, "a", ok.ToolUseID)
	assert.JSONEq(t, `{"text":"hola"}`, ok.Content)
	assert.False(t, ok.IsError)

	failed := res.Messages[4].Content[0]
	assert.True(t, failed.IsError)
	assert.Equal(t, "boom", failed.Content)
}

func TestRunToolLoopExhausted(t *testing.T) {
	llm := &scriptedLLM{}
	for i := 0; i < 3; i++ {
		llm.push(toolUse("x", "echo", map[string]string{}))
	}
	executor := ToolExecutorFunc(func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		return "{}", nil
	})
	_, err := RunToolLoop(context.Background(), llm, LLMRequest{}, executor, 3)
	assert.ErrorIs(t, err, util.ErrToolLoopExhausted)
}

func TestAnthropicClientTranslatesBlocks(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"Voy a buscar"},{"type":"tool_use","id":"tu_1","name":"search_units","input":{"query":"porcentaje"}}],"stop_reason":"tool_use"}`)
	}))
	defer srv.Close()

	client := &AnthropicClient{BaseURL: srv.URL + "/", APIKey: "key-1", Version: "2023-06-01", Model: "claude-test", HTTP: srv.Client()}
	resp, err := client.Complete(context.Background(), LLMRequest{
		System: "sistema",
		Messages: []LLMMessage{
			TextMessage(RoleUser, "hola"),
			{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockToolUse, ToolUseID: "tu_0", ToolName: "list_units"}}},
			{Role: RoleUser, Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "tu_0", Content: "x", IsError: true}}},
		},
		Tools: diagnosticTools(),
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.Equal(t, "sistema", got.System)
	require.Len(t, got.Messages, 3)
	assert.JSONEq(t, `{}`, string(got.Messages[1].Content[0].Input))
	assert.True(t, got.Messages[2].Content[0].IsError)
	assert.Len(t, got.Tools, 4)

	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, "Voy a buscar", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ToolUseID)
	assert.Equal(t, "search_units", calls[0].ToolName)
}

func TestRunToolLoopSkipsEmptyAssistantTurn(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		n := len(bodies)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			io.WriteString(w, `{"content":[],"stop_reason":"end_turn"}`)
			return
		}
		io.WriteString(w, `{"content":[{"type":"text","text":"Sigamos"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	client := &AnthropicClient{BaseURL: srv.URL, APIKey: "k", Version: "2023-06-01", Model: "claude-test", HTTP: srv.Client()}
	noTools := ToolExecutorFunc(func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		return "", errors.New("unexpected tool")
	})

	first, err := RunToolLoop(context.Background(), client, LLMRequest{Messages: []LLMMessage{TextMessage(RoleUser, "Mi respuesta es b")}}, noTools, 3)
	require.NoError(t, err)
	assert.Equal(t, "", first.Final.Text())
	require.Len(t, first.Messages, 1)

	// 历史里只剩 user 消息，下一轮再追加 user 消息
	history := append(first.Messages, TextMessage(RoleUser, "¿Sigues ahí?"))
	second, err := RunToolLoop(context.Background(), client, LLMRequest{Messages: history}, noTools, 3)
	require.NoError(t, err)
	assert.Equal(t, "Sigamos", second.Final.Text())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.NotContains(t, bodies[1], `"content":null`)
	var sent anthropicRequest
	require.NoError(t, json.Unmarshal([]byte(bodies[1]), &sent))
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, RoleUser, sent.Messages[0].Role)
	require.Len(t, sent.Messages[0].Content, 2)
	assert.Equal(t, "¿Sigues ahí?", sent.Messages[0].Content[1].Text)
}

func TestAnthropicClientDropsEmptyMessages(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		io.WriteString(w, `{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	client := &AnthropicClient{BaseURL: srv.URL, APIKey: "k", Version: "2023-06-01", Model: "claude-test", HTTP: srv.Client()}
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []LLMMessage{
		TextMessage(RoleUser, "hola"),
		{Role: RoleAssistant},
		{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockText, Text: "  "}}},
		TextMessage(RoleUser, "¿hola?"),
	}})
	require.NoError(t, err)
	assert.NotContains(t, raw, `"content":null`)
	assert.NotContains(t, raw, `"role":"assistant"`)
}

func TestOpenAIClientTranslatesToolCalls(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_question","arguments":"{\"question_id\":3}"}}]},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	client := &OpenAIClient{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test", MaxTokens: 300, HTTP: srv.Client()}
	resp, err := client.Complete(context.Background(), LLMRequest{
		System: "sistema",
		Messages: []LLMMessage{
			TextMessage(RoleUser, "hola"),
			{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockToolUse, ToolUseID: "call_0", ToolName: "list_units"}}},
			{Role: RoleUser, Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "call_0", Content: "fallo", IsError: true}}},
		},
		Tools: diagnosticTools(),
	})
	require.NoError(t, err)

	assert.Equal(t, 300, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "{}", got.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", got.Messages[3].Role)
	assert.Equal(t, "ERROR: fallo", *got.Messages[3].Content)
	require.Len(t, got.Tools, 4)
	assert.Equal(t, ToolListUnits, got.Tools[0].Function.Name)

	assert.Equal(t, StopToolUse, resp.StopReason)
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"question_id":3}`, string(calls[0].Input))
}

func TestLLMClientMapsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	svc := NewAIService(config.AIConfig{Provider: "anthropic", AnthropicBaseURL: srv.URL, Model: "m"})
	_, err := svc.Complete(context.Background(), LLMRequest{Messages: []LLMMessage{TextMessage(RoleUser, "hola")}})
	assert.ErrorIs(t, err, util.ErrLLMUnavailable)
	assert.Equal(t, 8, svc.MaxToolIterations())

	svc.UpdateConfig(config.AIConfig{Provider: "openai", OpenAIBaseURL: srv.URL, MaxToolIterations: 3})
	_, err = svc.Complete(context.Background(), LLMRequest{})
	assert.ErrorIs(t, err, util.ErrLLMUnavailable)
	assert.Equal(t, 3, svc.MaxToolIterations())
}
