package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memCertStore struct {
	mu     sync.Mutex
	certs  []*model.Certificate
	users  *memUserStore
	nextID uint
}

func (m *memCertStore) CreateOnce(ctx context.Context, cert *model.Certificate) (*model.Certificate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.UserID == cert.UserID && c.Kind == cert.Kind && c.SourceRef == cert.SourceRef {
			copied := *c
			return &copied, false, nil
		}
	}
	m.nextID++
	cert.ID = m.nextID
	copied := *cert
	m.certs = append(m.certs, &copied)
	return cert, true, nil
}

func (m *memCertStore) FindByCode(ctx context.Context, code string) (*model.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.Code == code {
			copied := *c
			if u, err := m.users.FindByID(ctx, c.UserID); err == nil {
				copied.User = u
			}
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memCertStore) ListByUser(ctx context.Context, userID uint) ([]model.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Certificate
	for _, c := range m.certs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCertStore) UpdateFile(ctx context.Context, id uint, fileKey, fileURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.ID == id {
			c.FileKey = fileKey
			c.FileURL = fileURL
		}
	}
	return nil
}

type memResults struct {
	session      model.LiveSession
	participants []model.SessionParticipant
}

func (m *memResults) FindByID(ctx context.Context, id uint) (*model.LiveSession, error) {
	if id != m.session.ID {
		return nil, gorm.ErrRecordNotFound
	}
	s := m.session
	return &s, nil
}

func (m *memResults) SubmittedParticipants(ctx context.Context, sessionID uint) ([]model.SessionParticipant, error) {
	return m.participants, nil
}

func newCertificateFixture(t *testing.T) (*CertificateService, *memCertStore, *memUserStore, string) {
	t.Helper()
	users := newMemUserStore()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &model.User{Name: "Camila Rojas", Email: "camila@example.cl", Role: model.Student}))
	require.NoError(t, users.Create(ctx, &model.User{Name: "Diego Muñoz", Email: "diego@example.cl", Role: model.Student}))

	now := time.Now()
	results := &memResults{
		session: model.LiveSession{BaseModel: model.BaseModel{ID: 7}, Title: "Ensayo marzo", Level: model.LevelM1},
		participants: []model.SessionParticipant{
			{ID: 1, SessionID: 7, UserID: 1, Score: 820, SubmittedAt: &now},
			{ID: 2, SessionID: 7, UserID: 2, Score: 640, SubmittedAt: &now},
		},
	}
	root := t.TempDir()
	store := &memCertStore{users: users}
	svc := NewCertificateService(store, results, users, &LocalStorageProvider{Root: root}, config.CertificateConfig{
		IssuerName: "Preuniversitario PAES Matemática",
		VerifyURL:  "https://paes.example.cl/verificar",
	})
	return svc, store, users, root
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestCertificateIssueForSessionIsIdempotent(t *testing.T) {
	svc, store, _, root := newCertificateFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueForSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)

	again, err := svc.IssueForSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
	assert.Len(t, store.certs, 2)

	mine, err := svc.ListMine(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Score)
	assert.Equal(t, 820, *mine[0].Score)
	assert.Equal(t, "certificates/"+mine[0].Code+".pdf", mine[0].FileKey)

	data, err := os.ReadFile(filepath.Join(root, mine[0].FileKey))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))

	_, err = svc.IssueForSession(ctx, 99)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestCertificateDownloadPermissionsAndRegeneration(t *testing.T) {
	svc, _, _, root := newCertificateFixture(t)
	ctx := context.Background()

	_, err := svc.IssueForSession(ctx, 7)
	require.NoError(t, err)
	mine, _ := svc.ListMine(ctx, 1)
	code := mine[0].Code

	_, _, err = svc.Download(ctx, Actor{UserID: 2, Role: model.Student}, code)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	require.NoError(t, os.Remove(filepath.Join(root, mine[0].FileKey)))
	rc, cert, err := svc.Download(ctx, Actor{UserID: 99, Role: model.Admin}, code)
	require.NoError(t, err)
	assert.Equal(t, code, cert.Code)
	assert.Equal(t, "%PDF", string(readAll(t, rc)[:4]))

	_, _, err = svc.Download(ctx, Actor{UserID: 1, Role: model.Student}, "missing")
	assert.ErrorIs(t, err, util.ErrCertificateNotFound)
}

func TestCertificateVerify(t *testing.T) {
	svc, _, _, _ := newCertificateFixture(t)
	ctx := context.Background()

	_, err := svc.IssueForSession(ctx, 7)
	require.NoError(t, err)
	mine, _ := svc.ListMine(ctx, 2)

	v, err := svc.Verify(ctx, mine[0].Code)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "Diego Muñoz", v.Recipient)
	assert.Equal(t, model.CertificateEnsayo, v.Kind)

	_, err = svc.Verify(ctx, "not-a-code")
	assert.ErrorIs(t, err, util.ErrCertificateNotFound)
}

func TestCertificateIssueForDiagnostic(t *testing.T) {
	svc, store, _, _ := newCertificateFixture(t)
	ctx := context.Background()

	d := &model.DiagnosticSession{UserID: 1, Level: model.LevelM2, Status: model.DiagnosticInProgress}
	d.ID = model.GenerateUUID()
	_, err := svc.IssueForDiagnostic(ctx, d)
	assert.ErrorIs(t, err, util.ErrDiagnosticClosed)

	d.Status = model.DiagnosticCompleted
	cert, err := svc.IssueForDiagnostic(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, d.ID, cert.SourceRef)
	assert.Nil(t, cert.Score)
	assert.Len(t, store.certs, 1)
}
