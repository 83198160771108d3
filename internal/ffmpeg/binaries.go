// Package ffmpeg locates the ffmpeg and ffprobe executables, downloading a
// pinned static build into the user cache when neither the environment nor
// PATH provides them.
package ffmpeg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mgpai22/vidgen/internal/fetch"
	"github.com/mgpai22/vidgen/internal/logging"
)

const (
	releaseVersion  = "6.1"
	releaseBaseURL  = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"
	downloadTimeout = 5 * time.Minute
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Resolve returns the binaries to use, preferring explicit overrides (from
// config) and falling back to Ensure for whichever is unset.
func Resolve(ffmpegPath, ffprobePath string) (BinaryPaths, error) {
	if ffmpegPath != "" && ffprobePath != "" {
		return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
	}
	paths, err := Ensure()
	if err != nil {
		return BinaryPaths{}, err
	}
	if ffmpegPath != "" {
		paths.FFmpeg = ffmpegPath
	}
	if ffprobePath != "" {
		paths.FFprobe = ffprobePath
	}
	return paths, nil
}

// Ensure resolves the binaries once per process from the environment, PATH
// or the download cache.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = ensure()
	})
	return ensurePath, ensureErr
}

func ensure() (BinaryPaths, error) {
	paths := BinaryPaths{
		FFmpeg:  os.Getenv("VIDGEN_FFMPEG_PATH"),
		FFprobe: os.Getenv("VIDGEN_FFPROBE_PATH"),
	}
	lookPath(&paths.FFmpeg, "ffmpeg")
	lookPath(&paths.FFprobe, "ffprobe")
	if paths.FFmpeg != "" && paths.FFprobe != "" {
		return paths, nil
	}

	asset, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}
	installDir := cacheDir()
	cached := cachedPaths(installDir)
	if binariesExist(cached) {
		return cached, nil
	}

	if err := install(context.Background(), asset, installDir); err != nil {
		return BinaryPaths{}, err
	}
	if !binariesExist(cached) {
		return BinaryPaths{}, fmt.Errorf("ffmpeg binaries not found in %s after extraction", installDir)
	}
	return cached, markExecutable(cached.FFmpeg, cached.FFprobe)
}

func lookPath(dst *string, name string) {
	if *dst != "" {
		return
	}
	if found, err := exec.LookPath(name); err == nil {
		*dst = found
	}
}

func cacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "vidgen", "ffmpeg", releaseVersion, runtime.GOOS, runtime.GOARCH)
}

func cachedPaths(installDir string) BinaryPaths {
	return BinaryPaths{
		FFmpeg:  filepath.Join(installDir, "ffmpeg"+executableSuffix()),
		FFprobe: filepath.Join(installDir, "ffprobe"+executableSuffix()),
	}
}

func markExecutable(paths ...string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	for _, p := range paths {
		if err := os.Chmod(p, 0o755); err != nil {
			return fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func assetForPlatform(goos, goarch string) (string, error) {
	var platform string
	switch goos + "/" + goarch {
	case "linux/amd64":
		platform = "linux-64"
	case "linux/arm64":
		platform = "linux-arm-64"
	case "darwin/amd64":
		platform = "macos-64"
	case "windows/amd64":
		platform = "win-64"
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s", goos, goarch)
	}
	return "ffmpeg-" + releaseVersion + "-" + platform + ".zip", nil
}

// install downloads the release archive into installDir and unpacks the two
// executables next to it.
func install(ctx context.Context, asset, installDir string) error {
	url := fmt.Sprintf("%s/v%s/%s", releaseBaseURL, releaseVersion, asset)
	logger := logging.NewLogger(false)
	logger.Infow("downloading ffmpeg", "url", url, "dir", installDir)

	archive, err := fetch.NewHTTPFetcher(downloadTimeout, logger).Fetch(ctx, url, installDir)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer os.Remove(archive)

	if err := extractArchive(archive, installDir); err != nil {
		return fmt.Errorf("extract %s: %w", asset, err)
	}
	return nil
}

func extractArchive(archivePath, installDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer zr.Close()

	dest := cachedPaths(installDir)
	wanted := map[string]string{"ffmpeg": dest.FFmpeg, "ffprobe": dest.FFprobe}
	for _, file := range zr.File {
		name := binaryName(filepath.Base(file.Name))
		target, ok := wanted[name]
		if !ok {
			continue
		}
		if err := extractZipFile(file, target); err != nil {
			return err
		}
		delete(wanted, name)
	}
	if len(wanted) > 0 {
		return fmt.Errorf("ffmpeg archive missing %d required binaries", len(wanted))
	}
	return nil
}

func extractZipFile(file *zip.File, dest string) error {
	r, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", file.Name, err)
	}
	defer r.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	return out.Close()
}

func binariesExist(p BinaryPaths) bool {
	return fileExists(p.FFmpeg) && fileExists(p.FFprobe)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// binaryName maps an archive entry to "ffmpeg" or "ffprobe", or "" for
// anything else.
func binaryName(name string) string {
	switch strings.TrimSuffix(strings.ToLower(name), ".exe") {
	case "ffmpeg":
		return "ffmpeg"
	case "ffprobe":
		return "ffprobe"
	}
	return ""
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
