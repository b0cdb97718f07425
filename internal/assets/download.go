// Package assets fetches remote resources into the site source tree. It is a
// one-off content-acquisition helper and never runs as part of a build graph.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/fsutil"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Downloader streams HTTP and HTTPS resources to local files.
type Downloader struct {
	client *http.Client
	logger logging.Logger
}

// NewDownloader creates a downloader. A nil client gets a client with a
// generous timeout; a nil logger discards output.
func NewDownloader(client *http.Client, logger logging.Logger) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{
		client: client,
		logger: logger.WithComponent("assets"),
	}
}

// Download fetches rawURL into filePath. The destination either ends up
// holding the complete body or does not exist: a response with status >= 400
// creates no file, and a transfer that is interrupted removes what was
// written before the error is returned.
func (d *Downloader) Download(ctx context.Context, rawURL, filePath string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return siteerrors.NewConfigError(siteerrors.ErrCodeBadURL, "only absolute http and https URLs can be downloaded: "+rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return siteerrors.NewNetworkError(siteerrors.ErrCodeBadURL, "failed to build request for "+rawURL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return siteerrors.NewNetworkError(siteerrors.ErrCodeDownloadAborted, "failed to download from "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return siteerrors.NewNetworkError(siteerrors.ErrCodeDownloadStatus, resp.Status, nil).
			WithContext("url", rawURL).
			WithContext("status", resp.StatusCode)
	}

	if err := fsutil.EnsureDir(filepath.Dir(filePath)); err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return siteerrors.NewIOError(siteerrors.ErrCodeWriteFile, "failed to create destination", err).WithPath(filePath)
	}

	n, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		copyErr = io.ErrUnexpectedEOF
	}
	if copyErr == nil {
		copyErr = closeErr
	}

	if copyErr != nil {
		if rmErr := os.Remove(filePath); rmErr != nil && !os.IsNotExist(rmErr) {
			return siteerrors.NewIOError(siteerrors.ErrCodeDownloadAborted, "failed to remove partial download", rmErr).WithPath(filePath)
		}
		d.logger.Warn(ctx, copyErr, "Download aborted", "url", rawURL, "path", filePath, "bytes", n)
		return siteerrors.NewNetworkError(
			siteerrors.ErrCodeDownloadAborted,
			fmt.Sprintf("download aborted: failed to download from %s", rawURL),
			copyErr,
		).WithPath(filePath)
	}

	d.logger.Info(ctx, "Downloaded asset", "url", rawURL, "path", filePath, "bytes", n)
	return nil
}
