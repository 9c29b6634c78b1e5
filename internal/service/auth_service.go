package service

import (
	"context"
	"errors"
	"fmt"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStore 用户持久化接口，由 repository.UserRepository 实现
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdateLastLogin(ctx context.Context, userID uint) error
	List(ctx context.Context, filter repository.UserFilter, page, limit int) ([]model.User, int64, error)
	Delete(ctx context.Context, id uint) error
	DeleteExpiredDemo(ctx context.Context, now time.Time) (int64, error)
}

type RegisterRequest struct {
	Name     string          `json:"name" binding:"required,max=100"`
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=8"`
	Level    model.TestLevel `json:"level"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name  *string          `json:"name" binding:"omitempty,max=100"`
	Level *model.TestLevel `json:"level"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// AuthResult 登录 / 注册 / 演示账号返回的令牌和用户
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type AuthService struct {
	UserRepo UserStore
	Cfg      *config.Config
	Now      func() time.Time
}

func NewAuthService(userRepo UserStore, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
		Now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// generateTempPassword 生成 12 位临时密码
func generateTempPassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *AuthService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return util.ErrEmailRegistered
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	level := req.Level
	if level == "" {
		level = model.LevelM1
	}
	if !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: hashed,
		Role:     model.Student,
		Level:    level,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Log.Info("User registered", zap.Uint("userId", user.ID), zap.String("level", string(level)))
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	user, err := s.UserRepo.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, util.ErrAccountDisabled
	}
	if user.IsDemo && user.DemoExpiresAt != nil && !user.DemoExpiresAt.After(s.Now()) {
		return nil, util.ErrInvalidCredentials
	}

	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.Log.Warn("Update last login failed", zap.Uint("userId", user.ID), zap.Error(err))
	}
	return s.issue(user)
}

// CreateDemoAccount 创建限时演示学生账号并直接返回令牌
func (s *AuthService) CreateDemoAccount(ctx context.Context, level model.TestLevel) (*AuthResult, error) {
	if !s.Cfg.Demo.Enabled {
		return nil, util.ErrDemoDisabled
	}
	if level == "" {
		level = model.LevelM1
	}
	if !level.Valid() {
		return nil, util.ErrInvalidLevel
	}

	hashed, err := hashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	expires := s.Now().Add(s.Cfg.Demo.TTL)
	user := &model.User{
		Name:          "Estudiante demo",
		Email:         fmt.Sprintf("demo-%s@demo.paes.local", id),
		Password:      hashed,
		Role:          model.Student,
		Level:         level,
		IsDemo:        true,
		DemoExpiresAt: &expires,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Log.Info("Demo account created", zap.Uint("userId", user.ID), zap.Time("expiresAt", expires))
	return s.issue(user)
}

func (s *AuthService) Profile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, req UpdateProfileRequest) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Level != nil {
		if !req.Level.Valid() {
			return nil, util.ErrInvalidLevel
		}
		user.Level = *req.Level
	}
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req ChangePasswordRequest) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		return util.ErrWrongPassword
	}
	hashed, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	user.Password = hashed
	return s.UserRepo.Update(ctx, user)
}
