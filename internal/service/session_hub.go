package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"paes_math_backend/pkg/logger"
	"paes_math_backend/pkg/monitoring"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
	presenceTTL    = 2 * time.Minute

	sessionEventsChannel = "live_session_events"
)

// 场次实时事件类型
const (
	EventRegistered        = "REGISTERED"
	EventParticipantJoined = "PARTICIPANT_JOINED"
	EventStatusChanged     = "STATUS_CHANGED"
	EventSubmitted         = "SUBMITTED"
	EventPresence          = "PRESENCE"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type      string      `json:"type"`
	SessionID uint        `json:"sessionId"`
	Data      interface{} `json:"data,omitempty"`
	At        time.Time   `json:"at"`
}

// SessionEventPublisher 场次事件发布接口
type SessionEventPublisher interface {
	Publish(sessionID uint, eventType string, data interface{})
}

type Client struct {
	Hub       *SessionHub
	Conn      *websocket.Conn
	Send      chan []byte
	UserID    uint
	SessionID uint
	Limiter   *rate.Limiter
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.ctx.Done():
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}
		if !c.Limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		// 客户端心跳，续期在线状态
		if msg.Type == "HEARTBEAT" {
			c.Hub.touchPresence(c.SessionID, c.UserID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	rooms map[uint]map[*Client]bool
	mu    sync.RWMutex
}

// SessionHub 每个场次一个房间，多实例之间通过 Redis pubsub 转发事件
// Redis 为 nil 时只在本实例内广播
type SessionHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	Redis      *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSessionHub(rdb *redis.Client) *SessionHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &SessionHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{rooms: make(map[uint]map[*Client]bool)}
	}
	return h
}

func (h *SessionHub) getShard(sessionID uint) *shard {
	return h.shards[sessionID%shardCount]
}

type pubSubMessage struct {
	SessionID uint            `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

func presenceKey(sessionID uint) string {
	return fmt.Sprintf("live_session:%d:presence", sessionID)
}

func (h *SessionHub) Run() {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(h.ctx, sessionEventsChannel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				var ps pubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &ps); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.deliverLocal(ps.SessionID, ps.Payload)
			}
		}()
	}

	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			s := h.getShard(client.SessionID)
			s.mu.Lock()
			room, ok := s.rooms[client.SessionID]
			if !ok {
				room = make(map[*Client]bool)
				s.rooms[client.SessionID] = room
			}
			room[client] = true
			s.mu.Unlock()
			monitoring.LiveSessionClients.Inc()
			h.touchPresence(client.SessionID, client.UserID)
			h.publishPresence(client.SessionID)

		case client := <-h.unregister:
			s := h.getShard(client.SessionID)
			s.mu.Lock()
			stillConnected := false
			if room, ok := s.rooms[client.SessionID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.Send)
					monitoring.LiveSessionClients.Dec()
				}
				for other := range room {
					if other.UserID == client.UserID {
						stillConnected = true
						break
					}
				}
				if len(room) == 0 {
					delete(s.rooms, client.SessionID)
				}
			}
			s.mu.Unlock()
			if !stillConnected {
				h.removePresence(client.SessionID, client.UserID)
			}
			h.publishPresence(client.SessionID)

		case <-heartbeat.C:
			h.refreshPresence()
		}
	}
}

func (h *SessionHub) touchPresence(sessionID, userID uint) {
	if h.Redis == nil {
		return
	}
	key := presenceKey(sessionID)
	pipe := h.Redis.Pipeline()
	pipe.SAdd(h.ctx, key, userID)
	pipe.Expire(h.ctx, key, presenceTTL)
	if _, err := pipe.Exec(h.ctx); err != nil {
		logger.Log.Warn("Presence update failed", zap.Uint("sessionId", sessionID), zap.Error(err))
	}
}

func (h *SessionHub) removePresence(sessionID, userID uint) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.SRem(h.ctx, presenceKey(sessionID), userID).Err(); err != nil {
		logger.Log.Warn("Presence removal failed", zap.Uint("sessionId", sessionID), zap.Error(err))
	}
}

// refreshPresence 为本实例上的所有房间续期
func (h *SessionHub) refreshPresence() {
	if h.Redis == nil {
		return
	}
	pipe := h.Redis.Pipeline()
	count := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for sessionID := range s.rooms {
			pipe.Expire(h.ctx, presenceKey(sessionID), presenceTTL)
			count++
		}
		s.mu.RUnlock()
	}
	if count > 0 {
		if _, err := pipe.Exec(h.ctx); err != nil {
			logger.Log.Warn("Presence refresh failed", zap.Error(err))
		}
	}
}

// OnlineUsers 场次在线用户，优先读 Redis（跨实例）
func (h *SessionHub) OnlineUsers(sessionID uint) []uint {
	if h.Redis != nil {
		members, err := h.Redis.SMembers(h.ctx, presenceKey(sessionID)).Result()
		if err == nil {
			ids := make([]uint, 0, len(members))
			for _, m := range members {
				if id, err := strconv.ParseUint(m, 10, 64); err == nil {
					ids = append(ids, uint(id))
				}
			}
			return ids
		}
		logger.Log.Warn("Presence read failed", zap.Uint("sessionId", sessionID), zap.Error(err))
	}

	s := h.getShard(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uint]bool)
	var ids []uint
	for c := range s.rooms[sessionID] {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}
	return ids
}

func (h *SessionHub) publishPresence(sessionID uint) {
	online := h.OnlineUsers(sessionID)
	h.Publish(sessionID, EventPresence, map[string]interface{}{
		"online":  len(online),
		"userIds": online,
	})
}

// Publish 向场次房间广播事件
func (h *SessionHub) Publish(sessionID uint, eventType string, data interface{}) {
	payload, err := json.Marshal(WSMessage{Type: eventType, SessionID: sessionID, Data: data, At: time.Now()})
	if err != nil {
		logger.Log.Error("Marshal session event failed", zap.String("type", eventType), zap.Error(err))
		return
	}

	if h.Redis == nil {
		h.deliverLocal(sessionID, payload)
		return
	}

	msg, _ := json.Marshal(pubSubMessage{SessionID: sessionID, Payload: payload})
	if err := h.Redis.Publish(h.ctx, sessionEventsChannel, msg).Err(); err != nil {
		logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
		h.deliverLocal(sessionID, payload)
	}
}

func (h *SessionHub) deliverLocal(sessionID uint, payload []byte) {
	s := h.getShard(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.rooms[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Stop 关闭所有连接并清理在线状态
func (h *SessionHub) Stop() {
	logger.Log.Info("SessionHub stopping")
	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for sessionID, room := range s.rooms {
			for client := range room {
				close(client.Send)
				closed++
			}
			if h.Redis != nil {
				h.Redis.Del(context.Background(), presenceKey(sessionID))
			}
			delete(s.rooms, sessionID)
		}
		s.mu.Unlock()
	}
	h.cancel()
	monitoring.LiveSessionClients.Set(0)
	logger.Log.Info("SessionHub stopped", zap.Int("closedConnections", closed))
}

func ServeSessionWs(hub *SessionHub, w http.ResponseWriter, r *http.Request, sessionID, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		UserID:    userID,
		SessionID: sessionID,
		Limiter:   rate.NewLimiter(rate.Limit(5), 10),
	}
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
