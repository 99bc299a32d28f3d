// Package storage persists report images and returns stable references to them.
package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	contextutils "civicapp/internal/utils"

	"github.com/google/uuid"
)

// ImageStore accepts raw image payloads and returns a reference URL.
// Callers only keep the reference, never the bytes.
type ImageStore interface {
	Save(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error)
}

// ValidateImage checks that an upload is an image no larger than maxBytes
func ValidateImage(contentType string, size, maxBytes int64) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn,
			"Only image uploads are accepted", "content type "+contentType)
	}
	if size <= 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "Image is empty", "")
	}
	if maxBytes > 0 && size > maxBytes {
		return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
			"Image exceeds the maximum upload size", "")
	}
	return nil
}

// ObjectName builds a collision-free key under reports/<yyyy>/<mm>/ keeping the original extension
func ObjectName(filename, contentType string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join("reports", now.UTC().Format("2006/01"), uuid.NewString()+ext)
}
