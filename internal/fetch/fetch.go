// Package fetch resolves asset references to local files, downloading
// HTTP(S) references into a render's working directory.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/mgpai22/vidgen/internal/logging"
)

const defaultTimeout = 120 * time.Second

// Fetcher turns a path or URL into a readable local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref, destDir string) (string, error)
}

// HTTPFetcher downloads URLs with net/http and checks local paths exist.
type HTTPFetcher struct {
	client *http.Client
	logger *logging.Logger
	// one download per destination file at a time
	inflight singleflight.Group
}

func NewHTTPFetcher(timeout time.Duration, logger *logging.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.Or(),
	}
}

// IsURL reports whether ref is an http or https URL.
func IsURL(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch returns an absolute local path for ref. URLs are saved under
// destDir as <hash>_<basename>; an earlier download of the same URL is
// reused.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref, destDir string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty asset reference")
	}
	if !IsURL(ref) {
		return localPath(ref)
	}

	dest := filepath.Join(destDir, LocalName(ref))
	v, err, _ := f.inflight.Do(dest, func() (any, error) {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			f.logger.Debugw("reusing downloaded asset", "url", ref, "path", dest)
			return dest, nil
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", errors.Wrap(err, "create download directory")
		}
		if err := f.download(ctx, ref, dest); err != nil {
			return "", err
		}
		f.logger.Infow("downloaded asset", "url", ref, "path", dest)
		return dest, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *HTTPFetcher) download(ctx context.Context, ref, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", ref)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "download %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("download %s returned %d: %s", ref, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return errors.Wrap(err, "create download file")
	}
	part := out.Name()
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(part)
		return errors.Wrapf(err, "write %s", ref)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return errors.Wrap(err, "close download file")
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		// another process may have published the same file first
		if info, statErr := os.Stat(dest); statErr == nil && info.Size() > 0 {
			return nil
		}
		return errors.Wrap(err, "finalize download")
	}
	return nil
}

// LocalName derives the download file name for a URL.
func LocalName(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	prefix := hex.EncodeToString(sum[:])[:12]

	base := "asset"
	if u, err := url.Parse(ref); err == nil {
		if b := path.Base(u.Path); b != "" && b != "." && b != "/" {
			base = b
		}
	}
	return prefix + "_" + base
}

func localPath(ref string) (string, error) {
	if strings.HasPrefix(ref, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			ref = filepath.Join(home, ref[2:])
		}
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", ref)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrapf(err, "asset %s", ref)
	}
	if info.IsDir() {
		return "", errors.Errorf("asset %s is a directory", ref)
	}
	return abs, nil
}
