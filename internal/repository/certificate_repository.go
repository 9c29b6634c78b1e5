package repository

import (
	"context"
	"paes_math_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

// CreateOnce 同一 (user, kind, source) 只会有一张证书，已存在时返回已有记录和 false
func (r *CertificateRepository) CreateOnce(ctx context.Context, cert *model.Certificate) (*model.Certificate, bool, error) {
	res := r.DB.WithContext(ctx).
		Omit("User").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cert)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return cert, true, nil
	}
	existing, err := r.FindBySource(ctx, cert.UserID, cert.Kind, cert.SourceRef)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *CertificateRepository) FindBySource(ctx context.Context, userID uint, kind model.CertificateKind, sourceRef string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND source_ref = ?", userID, kind, sourceRef).
		First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.WithContext(ctx).
		Preload("User").
		Where("code = ?", code).
		First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) ListByUser(ctx context.Context, userID uint) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&certs).Error
	return certs, err
}

func (r *CertificateRepository) UpdateFile(ctx context.Context, id uint, fileKey, fileURL string) error {
	return r.DB.WithContext(ctx).Model(&model.Certificate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"file_key": fileKey, "file_url": fileURL}).Error
}

func (r *CertificateRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Certificate{}).Count(&count).Error
	return count, err
}
