package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type UnitResourceStore interface {
	Create(ctx context.Context, res *model.UnitResource) error
	FindByID(ctx context.Context, id uint) (*model.UnitResource, error)
	ListByUnit(ctx context.Context, unitID uint) ([]model.UnitResource, error)
	Delete(ctx context.Context, id uint) error
}

// VideoProcessor 视频元数据与缩略图
type VideoProcessor interface {
	Probe(videoPath string) (*util.VideoInfo, error)
	Thumbnail(videoPath, thumbnailPath string) error
}

type ffmpegProcessor struct{}

func (ffmpegProcessor) Probe(videoPath string) (*util.VideoInfo, error) {
	return util.ProbeVideo(videoPath)
}

func (ffmpegProcessor) Thumbnail(videoPath, thumbnailPath string) error {
	return util.GenerateThumbnail(videoPath, thumbnailPath, "3")
}

type UploadResourceRequest struct {
	UnitID uint   `form:"unitId" binding:"required"`
	Title  string `form:"title" binding:"required"`
}

type LinkResourceRequest struct {
	UnitID uint   `json:"unitId" binding:"required"`
	Title  string `json:"title" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

type UnitResourceService struct {
	Repo    UnitResourceStore
	Units   UnitLookup
	Storage StorageProvider
	Video   VideoProcessor
	TempDir string
}

func NewUnitResourceService(repo UnitResourceStore, units UnitLookup, storage StorageProvider, tempDir string) *UnitResourceService {
	return &UnitResourceService{Repo: repo, Units: units, Storage: storage, Video: ffmpegProcessor{}, TempDir: tempDir}
}

func (s *UnitResourceService) List(ctx context.Context, unitID uint) ([]model.UnitResource, error) {
	if _, err := s.Units.FindUnit(ctx, unitID); err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	return s.Repo.ListByUnit(ctx, unitID)
}

// AddLink 外部链接资源，只接受 http(s)
func (s *UnitResourceService) AddLink(ctx context.Context, creatorID uint, req LinkResourceRequest) (*model.UnitResource, error) {
	if _, err := s.Units.FindUnit(ctx, req.UnitID); err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be http or https", util.ErrInvalidInput)
	}
	res := &model.UnitResource{
		UnitID:    req.UnitID,
		Title:     strings.TrimSpace(req.Title),
		Kind:      model.ResourceLink,
		URL:       u.String(),
		CreatorID: creatorID,
	}
	if err := s.Repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Upload 上传视频或 PDF；视频先落临时文件做探测和截图，再一并存储
func (s *UnitResourceService) Upload(ctx context.Context, creatorID uint, req UploadResourceRequest, file *multipart.FileHeader) (*model.UnitResource, error) {
	if _, err := s.Units.FindUnit(ctx, req.UnitID); err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mimeType, err := util.SniffMimeType(src, []string{util.MimeVideo, util.MimePDF})
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	base := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename)), " ", "-")
	stamp := time.Now().Format("20060102150405")

	res := &model.UnitResource{
		UnitID:    req.UnitID,
		Title:     strings.TrimSpace(req.Title),
		CreatorID: creatorID,
	}

	if util.IsPDF(mimeType) {
		res.Kind = model.ResourcePDF
		res.FileKey = fmt.Sprintf("resources/%d/%s-%s.pdf", req.UnitID, stamp, base)
		if res.URL, err = s.Storage.Upload(ctx, res.FileKey, src, file.Size, mimeType); err != nil {
			return nil, err
		}
	} else {
		if !util.HasExtension(file.Filename, util.AllowedVideoExtensions) {
			return nil, fmt.Errorf("%w: unsupported video extension %q", util.ErrInvalidFile, ext)
		}
		res.Kind = model.ResourceVideo
		res.FileKey = fmt.Sprintf("resources/%d/%s-%s%s", req.UnitID, stamp, base, ext)
		if err := s.storeVideo(ctx, res, src, mimeType, ext); err != nil {
			return nil, err
		}
	}

	if err := s.Repo.Create(ctx, res); err != nil {
		if delErr := s.Storage.Delete(ctx, res.FileKey); delErr != nil {
			logger.Log.Warn("Cleanup uploaded resource failed", zap.String("key", res.FileKey), zap.Error(delErr))
		}
		return nil, err
	}
	logger.Log.Info("Unit resource uploaded",
		zap.Uint("unitId", res.UnitID),
		zap.String("kind", string(res.Kind)),
		zap.Uint("creatorId", creatorID))
	return res, nil
}

func (s *UnitResourceService) storeVideo(ctx context.Context, res *model.UnitResource, src io.Reader, mimeType, ext string) error {
	tempDir := s.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(tempDir, "unit-video-*"+ext)
	if err != nil {
		return err
	}
	videoPath := tmp.Name()
	defer os.Remove(videoPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if info, err := s.Video.Probe(videoPath); err != nil {
		logger.Log.Warn("Probe video failed", zap.String("key", res.FileKey), zap.Error(err))
	} else {
		res.DurationSeconds = int(info.Duration + 0.5)
	}

	if res.URL, err = s.Storage.UploadFile(ctx, res.FileKey, videoPath, mimeType); err != nil {
		return err
	}

	thumbPath := strings.TrimSuffix(videoPath, ext) + ".jpg"
	defer os.Remove(thumbPath)
	if err := s.Video.Thumbnail(videoPath, thumbPath); err != nil {
		logger.Log.Warn("Generate thumbnail failed", zap.String("key", res.FileKey), zap.Error(err))
		return nil
	}
	thumbKey := strings.TrimSuffix(res.FileKey, ext) + ".jpg"
	if res.ThumbnailURL, err = s.Storage.UploadFile(ctx, thumbKey, thumbPath, "image/jpeg"); err != nil {
		logger.Log.Warn("Upload thumbnail failed", zap.String("key", thumbKey), zap.Error(err))
	}
	return nil
}

func (s *UnitResourceService) Delete(ctx context.Context, id uint) error {
	res, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, util.ErrResourceNotFound)
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	if res.FileKey == "" {
		return nil
	}
	keys := []string{res.FileKey}
	if res.Kind == model.ResourceVideo {
		keys = append(keys, strings.TrimSuffix(res.FileKey, filepath.Ext(res.FileKey))+".jpg")
	}
	for _, key := range keys {
		if err := s.Storage.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			logger.Log.Warn("Delete resource file failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
