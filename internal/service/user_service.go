package service

import (
	"context"
	"errors"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminUpdateUserRequest 管理员修改用户
type AdminUpdateUserRequest struct {
	Name     *string          `json:"name"`
	Role     *model.UserRole  `json:"role"`
	Level    *model.TestLevel `json:"level"`
	Disabled *bool            `json:"disabled"`
}

type ProvisionTeacherRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Email string `json:"email" binding:"required,email"`
}

// ProvisionResult 新建教师账号和一次性临时密码
type ProvisionResult struct {
	User         *model.User `json:"user"`
	TempPassword string      `json:"tempPassword"`
}

// UserService 管理员侧的用户管理
type UserService struct {
	UserRepo UserStore
	Now      func() time.Time
}

func NewUserService(userRepo UserStore) *UserService {
	return &UserService{
		UserRepo: userRepo,
		Now:      time.Now,
	}
}

func (s *UserService) find(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}

// ListUsers 获取用户列表，支持分页和筛选
func (s *UserService) ListUsers(ctx context.Context, filter repository.UserFilter, page, limit int) ([]model.User, int64, error) {
	return s.UserRepo.List(ctx, filter, page, limit)
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	return s.find(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, id uint, req AdminUpdateUserRequest) (*model.User, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		switch *req.Role {
		case model.Student, model.Teacher, model.Admin:
			user.Role = *req.Role
		default:
			return nil, util.ErrInvalidRole
		}
	}
	if req.Level != nil {
		if !req.Level.Valid() {
			return nil, util.ErrInvalidLevel
		}
		user.Level = *req.Level
	}
	if req.Disabled != nil {
		user.Disabled = *req.Disabled
	}
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DisableUser 禁用/启用用户
func (s *UserService) DisableUser(ctx context.Context, id uint, disable bool) error {
	user, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	user.Disabled = disable
	return s.UserRepo.Update(ctx, user)
}

// ResetPassword 重置为临时密码并返回明文
func (s *UserService) ResetPassword(ctx context.Context, id uint) (string, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	temp := generateTempPassword()
	hashed, err := hashPassword(temp)
	if err != nil {
		return "", err
	}
	user.Password = hashed
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return "", err
	}
	logger.Log.Info("Password reset by admin", zap.Uint("userId", id))
	return temp, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	return s.UserRepo.Delete(ctx, id)
}

// ProvisionTeacher 管理员开通教师账号
func (s *UserService) ProvisionTeacher(ctx context.Context, req ProvisionTeacherRequest) (*ProvisionResult, error) {
	email := normalizeEmail(req.Email)
	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	temp := generateTempPassword()
	hashed, err := hashPassword(temp)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: hashed,
		Role:     model.Teacher,
		Level:    model.LevelM1,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Log.Info("Teacher provisioned", zap.Uint("userId", user.ID))
	return &ProvisionResult{User: user, TempPassword: temp}, nil
}

// PurgeExpiredDemoAccounts 删除过期演示账号，定时任务调用
func (s *UserService) PurgeExpiredDemoAccounts(ctx context.Context) (int64, error) {
	n, err := s.UserRepo.DeleteExpiredDemo(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Info("Expired demo accounts purged", zap.Int64("count", n))
	}
	return n, nil
}
