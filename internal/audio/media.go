package audio

import (
	"path/filepath"
	"strings"
)

var (
	videoExts = map[string]bool{
		".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true,
		".m4v": true, ".mpeg": true, ".mpg": true, ".flv": true, ".3gp": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".aac": true, ".flac": true, ".ogg": true,
		".m4a": true, ".opus": true, ".aiff": true,
	}
	imageExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true,
	}
)

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[ext(path)]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[ext(path)]
}

// checks if the file is a still image based on extension
func IsImageFile(path string) bool {
	return imageExts[ext(path)]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
