package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"paes_math_backend/internal/middleware"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(users *memUsers) (*AuthController, http.Handler) {
	cfg := testConfig()
	ctrl := NewAuthController(service.NewAuthService(users, cfg))
	r := newTestRouter()
	r.POST("/api/auth/register", ctrl.Register)
	r.POST("/api/auth/login", ctrl.Login)
	r.POST("/api/auth/demo", ctrl.Demo)
	authed := r.Group("/api", middleware.AuthMiddleware(cfg))
	authed.GET("/user/profile", ctrl.Profile)
	authed.PUT("/user/password", middleware.DemoRestriction(), ctrl.ChangePassword)
	return ctrl, r
}

func TestRegisterLoginAndProfile(t *testing.T) {
	_, r := newAuthRouter(newMemUsers())

	w := doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Camila Rojas", "email": "Camila@Example.cl", "password": "secreto123", "level": "M2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var registered service.AuthResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &registered))
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "camila@example.cl", registered.User.Email)
	assert.Equal(t, model.LevelM2, registered.User.Level)
	assert.NotContains(t, w.Body.String(), "secreto123")

	w = doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Otra", "email": "camila@example.cl", "password": "secreto123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "email_registered", decode(t, w).Error)

	w = doJSON(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "camila@example.cl", "password": "incorrecta",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decode(t, w).Error)

	w = doJSON(r, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "camila@example.cl", "password": "secreto123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var login service.AuthResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &login))

	req := jsonRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	var profile model.User
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &profile))
	assert.Equal(t, "Camila Rojas", profile.Name)
}

func TestRegisterValidation(t *testing.T) {
	_, r := newAuthRouter(newMemUsers())

	w := doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Pedro", "email": "no-es-correo", "password": "secreto123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Pedro", "email": "pedro@example.cl", "password": "corta",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Pedro", "email": "pedro@example.cl", "password": "secreto123", "level": "M3",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_level", decode(t, w).Error)
}

func TestDemoAccountIsRestricted(t *testing.T) {
	_, r := newAuthRouter(newMemUsers())

	// 空 body 也可以创建
	w := doJSON(r, http.MethodPost, "/api/auth/demo", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var demo service.AuthResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &demo))
	assert.True(t, demo.User.IsDemo)
	require.NotNil(t, demo.User.DemoExpiresAt)

	req := jsonRequest(http.MethodPut, "/api/user/password", map[string]string{
		"oldPassword": "x", "newPassword": "nuevaclave1",
	})
	req.Header.Set("Authorization", "Bearer "+demo.Token)
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
