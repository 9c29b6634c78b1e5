package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialRoom(t *testing.T, hub *SessionHub, sessionID, userID uint) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeSessionWs(hub, w, r, sessionID, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, wantType string) WSMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == wantType {
			return msg
		}
	}
}

func TestSessionHubDeliversOnlyToRoom(t *testing.T) {
	hub := NewSessionHub(nil)
	go hub.Run()
	defer hub.Stop()

	inRoom := dialRoom(t, hub, 1, 10)
	otherRoom := dialRoom(t, hub, 2, 20)

	presence := readEvent(t, inRoom, EventPresence)
	assert.Equal(t, uint(1), presence.SessionID)
	readEvent(t, otherRoom, EventPresence)

	hub.Publish(1, EventStatusChanged, map[string]string{"status": "in_progress"})

	msg := readEvent(t, inRoom, EventStatusChanged)
	assert.Equal(t, uint(1), msg.SessionID)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "in_progress", data["status"])

	otherRoom.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := otherRoom.ReadMessage()
	assert.Error(t, err, "room 2 must not receive room 1 events")
}

func TestSessionHubLocalPresence(t *testing.T) {
	hub := NewSessionHub(nil)
	go hub.Run()
	defer hub.Stop()

	a := dialRoom(t, hub, 3, 1)
	readEvent(t, a, EventPresence)
	b := dialRoom(t, hub, 3, 2)
	readEvent(t, b, EventPresence)

	assert.Eventually(t, func() bool {
		return len(hub.OnlineUsers(3)) == 2
	}, time.Second, 10*time.Millisecond)
}

func newRedisHub(t *testing.T, mr *miniredis.Miniredis) *SessionHub {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	hub := NewSessionHub(rdb)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestSessionHubFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	publisher := newRedisHub(t, mr)
	receiver := newRedisHub(t, mr)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(sessionEventsChannel)[sessionEventsChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	conn := dialRoom(t, receiver, 5, 50)
	readEvent(t, conn, EventPresence)

	// 事件从另一个实例发布，经 Redis 转发到本实例的房间
	publisher.Publish(5, EventSubmitted, map[string]interface{}{"userId": 51})
	msg := readEvent(t, conn, EventSubmitted)
	assert.Equal(t, uint(5), msg.SessionID)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(51), data["userId"])

	publisher.Publish(6, EventSubmitted, nil)
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "room 5 must not receive room 6 events")
}

func TestSessionHubPresenceTTLRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	hub := newRedisHub(t, mr)
	other := newRedisHub(t, mr)
	key := presenceKey(7)

	conn := dialRoom(t, hub, 7, 42)
	require.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(key, "42")
		return ok && mr.TTL(key) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, presenceTTL, mr.TTL(key))

	// 其他实例没有本地连接，也能从 Redis 读到在线用户
	assert.Equal(t, []uint{42}, other.OnlineUsers(7))

	mr.FastForward(90 * time.Second)
	assert.Equal(t, presenceTTL-90*time.Second, mr.TTL(key))
	hub.refreshPresence()
	assert.Equal(t, presenceTTL, mr.TTL(key))

	// 实例失联不再续期，在线状态随 TTL 过期
	mr.FastForward(presenceTTL + time.Second)
	assert.False(t, mr.Exists(key))
	assert.Empty(t, other.OnlineUsers(7))

	conn.Close()
}

func TestSessionHubRemovesPresenceOnDisconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	hub := newRedisHub(t, mr)
	key := presenceKey(8)

	conn := dialRoom(t, hub, 8, 3)
	require.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(key, "3")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(key, "3")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
