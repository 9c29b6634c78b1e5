package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoInfo 讲解视频的元数据
type VideoInfo struct {
	Duration float64 `json:"duration"` // 秒
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// probeOutput ffprobe -show_format -show_streams 的 JSON 输出
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeVideo 使用 ffprobe 读取视频时长与分辨率
func ProbeVideo(videoPath string) (*VideoInfo, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not found: %w", err)
	}

	raw, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	return parseProbeOutput(raw)
}

func parseProbeOutput(raw string) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &VideoInfo{}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// GenerateThumbnail 截取 timeOffset 处的一帧作为缩略图
func GenerateThumbnail(videoPath, thumbnailPath, timeOffset string) error {
	if err := os.MkdirAll(filepath.Dir(thumbnailPath), 0755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}

	return ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": timeOffset}).
		Output(thumbnailPath, ffmpeg.KwArgs{
			"vframes": "1",
			"q:v":     "2",
		}).
		OverWriteOutput().
		Run()
}
