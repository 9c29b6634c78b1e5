package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memUsers struct {
	mu     sync.Mutex
	users  map[uint]*model.User
	nextID uint
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uint]*model.User{}}
}

func (m *memUsers) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUsers) FindByID(ctx context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUsers) Update(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, userID uint) error { return nil }

func (m *memUsers) List(ctx context.Context, filter repository.UserFilter, page, limit int) ([]model.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (m *memUsers) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memUsers) DeleteExpiredDemo(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "controller-test-secret"
	cfg.JWT.ExpireTime = time.Hour
	cfg.Demo.Enabled = true
	cfg.Demo.TTL = 24 * time.Hour
	return cfg
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// withClaims 模拟认证中间件写入的用户信息
func withClaims(userID uint, role model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", &util.Claims{UserID: userID, Role: role})
		c.Next()
	}
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(r http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	return serve(r, jsonRequest(method, target, body))
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(strings.NewReader(w.Body.String())).Decode(&env))
	return env
}
