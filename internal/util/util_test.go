package util

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paes_math_backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "ana@example.cl", Role: model.Student}
	user.ID = 7

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.False(t, claims.IsDemo)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestJWTDemoExpiryCapped(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute)
	user := &model.User{Email: "demo@example.cl", Role: model.Student, IsDemo: true, DemoExpiresAt: &expires}
	user.ID = 3

	token, err := GenerateJWT(user, "secret", 72*time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.True(t, claims.IsDemo)
	assert.WithinDuration(t, expires, claims.ExpiresAt.Time, time.Second)
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrSessionFull, http.StatusBadRequest, "session_full"},
		{ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
		{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{ErrLLMUnavailable, http.StatusServiceUnavailable, "ai_unavailable"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		RespondError(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"`+tc.code+`"`)
	}
}

func TestStatusForWrappedError(t *testing.T) {
	status, code := StatusForError(fmt.Errorf("load session 4: %w", ErrSessionNotFound))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", code)

	status, _ = StatusForError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestSniffMimeTypeResetsReader(t *testing.T) {
	data := []byte("%PDF-1.4\n%fake document")
	r := bytes.NewReader(data)

	mime, err := SniffMimeType(r, []string{MimePDF})
	require.NoError(t, err)
	assert.Equal(t, MimePDF, mime)
	pos, _ := r.Seek(0, 1)
	assert.Equal(t, int64(0), pos)

	_, err = SniffMimeType(bytes.NewReader([]byte("plain text")), []string{MimeVideo})
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestParseProbeOutput(t *testing.T) {
	raw := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720}],"format":{"duration":"93.5"}}`
	info, err := parseProbeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 93.5, info.Duration, 0.001)
}
