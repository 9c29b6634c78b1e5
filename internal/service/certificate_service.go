package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"paes_math_backend/pkg/monitoring"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CertificateStore 由 repository.CertificateRepository 实现
type CertificateStore interface {
	CreateOnce(ctx context.Context, cert *model.Certificate) (*model.Certificate, bool, error)
	FindByCode(ctx context.Context, code string) (*model.Certificate, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Certificate, error)
	UpdateFile(ctx context.Context, id uint, fileKey, fileURL string) error
}

// SessionResultsSource 场次证书需要的数据
type SessionResultsSource interface {
	FindByID(ctx context.Context, id uint) (*model.LiveSession, error)
	SubmittedParticipants(ctx context.Context, sessionID uint) ([]model.SessionParticipant, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// CertificateVerification 公开验证接口返回的信息，不含邮箱
type CertificateVerification struct {
	Valid     bool                  `json:"valid"`
	Code      string                `json:"code"`
	Recipient string                `json:"recipient"`
	Kind      model.CertificateKind `json:"kind"`
	Title     string                `json:"title"`
	Score     *int                  `json:"score,omitempty"`
	IssuedAt  time.Time             `json:"issuedAt"`
}

type CertificateService struct {
	Repo     CertificateStore
	Sessions SessionResultsSource
	Users    UserFinder
	Storage  StorageProvider
	Config   config.CertificateConfig
	Now      func() time.Time
}

func NewCertificateService(repo CertificateStore, sessions SessionResultsSource, users UserFinder, storage StorageProvider, cfg config.CertificateConfig) *CertificateService {
	return &CertificateService{
		Repo:     repo,
		Sessions: sessions,
		Users:    users,
		Storage:  storage,
		Config:   cfg,
		Now:      time.Now,
	}
}

func certificateKey(code string) string {
	return "certificates/" + code + ".pdf"
}

// IssueForSession 为场次所有已交卷学生发证书，返回新发出的数量，可重复调用
func (s *CertificateService) IssueForSession(ctx context.Context, sessionID uint) (int, error) {
	session, err := s.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return 0, notFound(err, util.ErrSessionNotFound)
	}
	participants, err := s.Sessions.SubmittedParticipants(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	issued := 0
	for _, p := range participants {
		score := p.Score
		cert := &model.Certificate{
			UserID:    p.UserID,
			Kind:      model.CertificateEnsayo,
			SourceRef: strconv.FormatUint(uint64(sessionID), 10),
			Title:     fmt.Sprintf("Ensayo PAES %s: %s", session.Level, session.Title),
			Score:     &score,
		}
		created, err := s.issue(ctx, cert, p.User)
		if err != nil {
			logger.Log.Error("Issue ensayo certificate failed", zap.Uint("sessionId", sessionID), zap.Uint("userId", p.UserID), zap.Error(err))
			continue
		}
		if created {
			issued++
		}
	}
	return issued, nil
}

// IssueForDiagnostic 诊断完成后发一张证书
func (s *CertificateService) IssueForDiagnostic(ctx context.Context, d *model.DiagnosticSession) (*model.Certificate, error) {
	if d.Status != model.DiagnosticCompleted {
		return nil, util.ErrDiagnosticClosed
	}
	cert := &model.Certificate{
		UserID:    d.UserID,
		Kind:      model.CertificateDiagnostic,
		SourceRef: d.ID,
		Title:     fmt.Sprintf("Diagnóstico PAES %s", d.Level),
	}
	if _, err := s.issue(ctx, cert, nil); err != nil {
		return nil, err
	}
	return cert, nil
}

// issue 写入证书记录；首次创建时渲染 PDF 并上传
func (s *CertificateService) issue(ctx context.Context, cert *model.Certificate, recipient *model.User) (bool, error) {
	cert.Code = uuid.NewString()
	cert.IssuedAt = s.Now()

	stored, created, err := s.Repo.CreateOnce(ctx, cert)
	if err != nil {
		return false, err
	}
	*cert = *stored
	if !created {
		return false, nil
	}

	if recipient == nil {
		if recipient, err = s.Users.FindByID(ctx, cert.UserID); err != nil {
			logger.Log.Warn("Certificate recipient lookup failed", zap.Uint("userId", cert.UserID), zap.Error(err))
		}
	}
	if err := s.renderAndStore(ctx, cert, recipient); err != nil {
		// 记录已存在，下载时会重新生成文件
		logger.Log.Warn("Certificate file not stored", zap.String("code", cert.Code), zap.Error(err))
	}
	monitoring.CertificatesIssued.WithLabelValues(string(cert.Kind)).Inc()
	return true, nil
}

func (s *CertificateService) renderAndStore(ctx context.Context, cert *model.Certificate, recipient *model.User) error {
	data, err := s.Render(cert, recipient)
	if err != nil {
		return err
	}
	key := certificateKey(cert.Code)
	url, err := s.Storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), util.MimePDF)
	if err != nil {
		return err
	}
	cert.FileKey = key
	cert.FileURL = url
	return s.Repo.UpdateFile(ctx, cert.ID, key, url)
}

// Render 生成 A4 横版证书 PDF
func (s *CertificateService) Render(cert *model.Certificate, recipient *model.User) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(cert.Title), false)
	pdf.SetAuthor(tr(s.Config.IssuerName), false)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(30, 64, 120)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetTextColor(30, 64, 120)
	pdf.SetY(32)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.CellFormat(0, 14, tr("Certificado"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 8, tr(s.Config.IssuerName), "", 1, "C", false, 0, "")

	pdf.Ln(14)
	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, tr("Se certifica que"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 24)
	name := "Estudiante"
	if recipient != nil && recipient.Name != "" {
		name = recipient.Name
	}
	pdf.CellFormat(0, 14, tr(name), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	switch cert.Kind {
	case model.CertificateEnsayo:
		pdf.CellFormat(0, 8, tr("rindió el ensayo"), "", 1, "C", false, 0, "")
	default:
		pdf.CellFormat(0, 8, tr("completó la evaluación"), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(cert.Title), "", 1, "C", false, 0, "")

	if cert.Score != nil {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 20)
		pdf.SetTextColor(30, 64, 120)
		pdf.CellFormat(0, 12, tr(fmt.Sprintf("Puntaje: %d", *cert.Score)), "", 1, "C", false, 0, "")
		pdf.SetTextColor(40, 40, 40)
	}

	pdf.SetY(h - 48)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr("Emitido el "+cert.IssuedAt.Format(util.DateFormat)), "", 1, "C", false, 0, "")
	if s.Config.SignerName != "" {
		pdf.CellFormat(0, 6, tr(s.Config.SignerName), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Courier", "", 9)
	verify := "Código de verificación: " + cert.Code
	if s.Config.VerifyURL != "" {
		verify += "  " + strings.TrimRight(s.Config.VerifyURL, "/") + "/" + cert.Code
	}
	pdf.CellFormat(0, 6, tr(verify), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *CertificateService) ListMine(ctx context.Context, userID uint) ([]model.Certificate, error) {
	return s.Repo.ListByUser(ctx, userID)
}

// Download 仅本人或管理员可下载；文件缺失时重新生成
func (s *CertificateService) Download(ctx context.Context, actor Actor, code string) (io.ReadCloser, *model.Certificate, error) {
	cert, err := s.Repo.FindByCode(ctx, code)
	if err != nil {
		return nil, nil, notFound(err, util.ErrCertificateNotFound)
	}
	if cert.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, nil, util.ErrPermissionDenied
	}

	if cert.FileKey != "" {
		rc, err := s.Storage.Open(ctx, cert.FileKey)
		if err == nil {
			return rc, cert, nil
		}
		if !errors.Is(err, ErrObjectNotFound) {
			return nil, nil, err
		}
		logger.Log.Warn("Certificate file missing, regenerating", zap.String("code", code))
	}

	recipient := cert.User
	if recipient == nil {
		if recipient, err = s.Users.FindByID(ctx, cert.UserID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
	}
	if err := s.renderAndStore(ctx, cert, recipient); err != nil {
		return nil, nil, err
	}
	rc, err := s.Storage.Open(ctx, cert.FileKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, cert, nil
}

// Verify 公开校验证书编号
func (s *CertificateService) Verify(ctx context.Context, code string) (*CertificateVerification, error) {
	if _, err := uuid.Parse(code); err != nil {
		return nil, util.ErrCertificateNotFound
	}
	cert, err := s.Repo.FindByCode(ctx, code)
	if err != nil {
		return nil, notFound(err, util.ErrCertificateNotFound)
	}
	v := &CertificateVerification{
		Valid:    true,
		Code:     cert.Code,
		Kind:     cert.Kind,
		Title:    cert.Title,
		Score:    cert.Score,
		IssuedAt: cert.IssuedAt,
	}
	if cert.User != nil {
		v.Recipient = cert.User.Name
	}
	return v, nil
}
