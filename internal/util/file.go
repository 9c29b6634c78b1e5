package util

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// SniffMimeType 读取文件头判断 MIME 类型，读取后把游标复位
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "video/", "application/pdf"
func SniffMimeType(file io.ReadSeeker, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}

	return mimeType, fmt.Errorf("%w: unsupported type %s", ErrInvalidFile, mimeType)
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimeVideo)
}

func IsPDF(mimeType string) bool {
	return mimeType == MimePDF
}

// HasExtension 扩展名校验（不区分大小写）
func HasExtension(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
