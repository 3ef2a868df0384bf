package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"whatsingest/internal/constants"
	apperrors "whatsingest/internal/errors"
	"whatsingest/internal/models"
	"whatsingest/internal/retry"
	"whatsingest/pkg/ingest/types"
)

// kindExtensions maps a message kind to a fallback extension when the
// media locator carries none.
var kindExtensions = map[models.MessageType]string{
	models.MessageTypeImage:    "jpg",
	models.MessageTypeAudio:    "mp3",
	models.MessageTypeVideo:    "mp4",
	models.MessageTypeDocument: "pdf",
}

// GenerateFilename builds a globally unique media filename of the form
// whatsapp_<kind>_<timestamp>_<token>.<ext>. The extension comes from
// the locator URL when discoverable, otherwise from the kind table.
func GenerateFilename(mediaURL string, kind models.MessageType) string {
	ext := ""
	if u, err := url.Parse(mediaURL); err == nil {
		if i := strings.LastIndex(u.Path, "."); i >= 0 && i < len(u.Path)-1 {
			ext = strings.ToLower(u.Path[i+1:])
		}
	}

	if ext == "" {
		var ok bool
		if ext, ok = kindExtensions[kind]; !ok {
			ext = "bin"
		}
	}

	token := uuid.NewString()[:8]
	timestamp := time.Now().Format("20060102_150405")

	return fmt.Sprintf("whatsapp_%s_%s_%s.%s", kind, timestamp, token, ext)
}

// Pipeline resolves, downloads, validates, and cleans up media files.
// Downloads are sequential and deduplicated by target filename.
type Pipeline struct {
	exec    types.Executor
	retryer types.Retryer
	logger  *logrus.Logger
	delay   time.Duration
	sleep   func(time.Duration)
}

// NewPipeline creates a pipeline downloading through the given
// executor, with the retryer wrapped around each transfer.
func NewPipeline(exec types.Executor, retryer types.Retryer, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Pipeline{
		exec:    exec,
		retryer: retryer,
		logger:  logger,
		delay:   constants.BatchDownloadDelayMs * time.Millisecond,
		sleep:   time.Sleep,
	}
}

// Download fetches mediaURL into outputDir/filename and returns the
// written path. Deduplication is by filename, not content hash: an
// existing file at the target path is returned without a network call,
// so distinct media that generate colliding names are indistinguishable
// from true duplicates.
func (p *Pipeline) Download(ctx context.Context, mediaURL, filename, outputDir string) (string, error) {
	if mediaURL == "" {
		return "", apperrors.NewValidationError("media_url", "media URL is required")
	}
	if filename == "" {
		return "", apperrors.NewValidationError("filename", "filename is required")
	}

	if err := os.MkdirAll(outputDir, constants.DefaultDirectoryPermissions); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(outputDir, filename)

	if _, err := os.Stat(filePath); err == nil {
		p.logger.WithField("path", filePath).Info("Media file already exists, skipping download")
		return filePath, nil
	}

	err := p.retryer.WithRetry(ctx, retry.CategoryMedia, func() error {
		return p.downloadOnce(ctx, mediaURL, filePath)
	})
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"filename": filename,
		}).WithError(err).Error("Media download failed")
		return "", err
	}

	return filePath, nil
}

func (p *Pipeline) downloadOnce(ctx context.Context, mediaURL, filePath string) error {
	resp := p.exec.Execute(ctx, http.MethodGet, mediaURL, &types.RequestOptions{Stream: true})
	if resp == nil {
		return apperrors.NewNetworkError("media download", fmt.Errorf("no response for %s", filePath))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewMediaError("download", filepath.Base(filePath),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	out, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create media file: %w", err)
	}

	buf := make([]byte, constants.DownloadChunkSize)
	written, err := io.CopyBuffer(out, resp.Body, buf)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Remove the partial file so the next attempt does not hit the
		// filename dedup check against a truncated download.
		os.Remove(filePath)
		return apperrors.NewMediaError("write", filepath.Base(filePath), err)
	}

	p.logger.WithFields(logrus.Fields{
		"path": filePath,
		"size": written,
	}).Info("Media downloaded")
	return nil
}

// DownloadBatch downloads items sequentially with a small delay between
// them. One item's failure never aborts the batch; failed items map to
// an empty path.
func (p *Pipeline) DownloadBatch(ctx context.Context, items []models.MediaRef, outputDir string) map[string]string {
	results := make(map[string]string, len(items))

	for i, item := range items {
		if item.URL == "" || item.Filename == "" {
			p.logger.WithField("filename", item.Filename).Warn("Skipping media item without URL or filename")
			results[item.Filename] = ""
			continue
		}

		path, err := p.Download(ctx, item.URL, item.Filename, outputDir)
		if err != nil {
			results[item.Filename] = ""
		} else {
			results[item.Filename] = path
		}

		if i < len(items)-1 {
			p.sleep(p.delay)
		}
	}

	return results
}

// Validate reports whether a downloaded file looks complete: present,
// non-empty, and matching the expected size when one is known. A size
// mismatch logs a warning rather than failing hard.
func (p *Pipeline) Validate(path string, expectedSize int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		p.logger.WithField("path", path).Error("Media file does not exist")
		return false
	}

	if info.Size() == 0 {
		p.logger.WithField("path", path).Error("Media file is empty")
		return false
	}

	if expectedSize > 0 && info.Size() != expectedSize {
		p.logger.WithFields(logrus.Fields{
			"path":     path,
			"expected": expectedSize,
			"actual":   info.Size(),
		}).Warn("Media file size mismatch")
		return false
	}

	return true
}

// CleanupFailed removes files under the minimum valid size from one
// directory level (non-recursive), treating them as incomplete
// downloads, and returns how many were removed.
func (p *Pipeline) CleanupFailed(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		p.logger.WithField("dir", dir).WithError(err).Error("Cleanup failed to read directory")
		return 0
	}

	cleaned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.Size() < constants.MinValidMediaFileSize {
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				p.logger.WithField("path", path).WithError(err).Warn("Failed to remove incomplete download")
				continue
			}
			p.logger.WithField("path", path).Info("Cleaned up incomplete download")
			cleaned++
		}
	}

	return cleaned
}

// Info probes a media URL with a HEAD request without downloading the
// body. Nil on failure.
func (p *Pipeline) Info(ctx context.Context, mediaURL string) *models.MediaInfo {
	resp := p.exec.Execute(ctx, http.MethodHead, mediaURL, nil)
	if resp == nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	length, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	return &models.MediaInfo{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: length,
		LastModified:  resp.Header.Get("Last-Modified"),
		ETag:          resp.Header.Get("ETag"),
	}
}
