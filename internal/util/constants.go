package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimeVideo = "video/"
	MimePDF   = "application/pdf"
	MimeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	AllowedVideoExtensions = []string{".mp4", ".mov", ".webm", ".mkv"}
)

// PAES 标准分数区间
const (
	PAESMinScore = 100
	PAESMaxScore = 1000
)
