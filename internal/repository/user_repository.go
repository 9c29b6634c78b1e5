package repository

import (
	"context"
	"paes_math_backend/internal/model"
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// UserFilter 管理员用户列表筛选条件
type UserFilter struct {
	Role   model.UserRole
	Search string
	IsDemo *bool
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 邮箱统一小写存储
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Save(user).Error
}

func (r *UserRepository) UpdateLastSeen(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_seen", time.Now()).Error
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uint) error {
	now := time.Now()
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{"last_login": now, "last_seen": now}).Error
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter, page, limit int) ([]model.User, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.User{})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.IsDemo != nil {
		query = query.Where("is_demo = ?", *filter.IsDemo)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error
	return users, total, err
}

// Delete 物理删除，外键级联清理作答、报名与证书
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(&model.User{}, id).Error
}

// DeleteExpiredDemo 删除已过期的演示账号，返回删除条数
func (r *UserRepository) DeleteExpiredDemo(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Unscoped().
		Where("is_demo = ? AND demo_expires_at IS NOT NULL AND demo_expires_at < ?", true, now).
		Delete(&model.User{})
	return res.RowsAffected, res.Error
}

func (r *UserRepository) CountByRole(ctx context.Context) (map[model.UserRole]int, error) {
	var rows []struct {
		Role  model.UserRole
		Count int
	}
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[model.UserRole]int, len(rows))
	for _, row := range rows {
		result[row.Role] = row.Count
	}
	return result, nil
}

func (r *UserRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("last_seen >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *UserRepository) CountDemo(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).Where("is_demo = ?", true).Count(&count).Error
	return count, err
}
