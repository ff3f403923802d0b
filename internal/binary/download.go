package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "heykeploy/1.0"
	// maxRedirects bounds GitHub's release redirect chain
	maxRedirects = 10
)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Downloader handles HTTP downloads. Retries default to zero: an update is
// a single attempt unless configured otherwise.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
}

// NewDownloader creates a new downloader. A nil client gets a default one
// with DefaultTimeout.
func NewDownloader(client *http.Client, retries int) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if client.CheckRedirect == nil {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		}
	}
	if retries < 0 {
		retries = 0
	}
	return &Downloader{
		client:    client,
		userAgent: DefaultUserAgent,
		retries:   retries,
	}
}

// DownloadToFile downloads a URL to a specific file path
func (d *Downloader) DownloadToFile(ctx context.Context, rawURL, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.downloadOnce(ctx, rawURL, destPath)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if d.retries == 0 {
		return lastErr
	}
	return fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

// downloadOnce performs a single download attempt
func (d *Downloader) downloadOnce(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("incomplete download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// downloadArtifacts fetches the archive and every configured verification
// file into dir.
func (d *Downloader) downloadArtifacts(ctx context.Context, src Source, dir string) (*artifacts, error) {
	archive, err := d.fetchInto(ctx, src.URL, dir)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	a := &artifacts{archive: archive}

	if src.ChecksumURL != "" {
		if a.checksums, err = d.fetchInto(ctx, src.ChecksumURL, dir); err != nil {
			return nil, fmt.Errorf("download checksums: %w", err)
		}
	}
	if src.SignatureURL != "" {
		if a.signature, err = d.fetchInto(ctx, src.SignatureURL, dir); err != nil {
			return nil, fmt.Errorf("download signature: %w", err)
		}
	}
	if src.BundleURL != "" {
		if a.bundle, err = d.fetchInto(ctx, src.BundleURL, dir); err != nil {
			return nil, fmt.Errorf("download bundle: %w", err)
		}
	}

	return a, nil
}

// fetchInto downloads rawURL into dir under the URL's base name.
func (d *Downloader) fetchInto(ctx context.Context, rawURL, dir string) (string, error) {
	name, err := assetName(rawURL)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	if err := d.DownloadToFile(ctx, rawURL, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// assetName returns the last path segment of rawURL, the name checksum
// files refer to.
func assetName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("URL has no file name: %s", rawURL)
	}
	return name, nil
}
