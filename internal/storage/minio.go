package storage

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// MinioImageStore stores images in an S3-compatible bucket
type MinioImageStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *observability.Logger
	now     func() time.Time
}

// NewMinioImageStore creates a client for cfg; the bucket is checked on Startup
func NewMinioImageStore(cfg config.StorageConfig, logger *observability.Logger) (*MinioImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    "us-east-1",
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create minio client")
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}

	return &MinioImageStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Startup creates the bucket if it does not exist yet
func (s *MinioImageStore) Startup(ctx context.Context) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "ensure_bucket", attribute.String("storage.bucket", s.bucket))
	defer observability.FinishSpan(span, &err)

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return storageUnavailable("failed to check bucket", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return storageUnavailable("failed to create bucket", err)
	}
	s.logger.Info(ctx, "Created image bucket", map[string]interface{}{"bucket": s.bucket})
	return nil
}

// Save uploads body and returns its public URL
func (s *MinioImageStore) Save(ctx context.Context, filename, contentType string, body io.Reader, size int64) (result string, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "save_image",
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.content_type", contentType),
		attribute.Int64("storage.size", size),
	)
	defer observability.FinishSpan(span, &err)

	objectName := ObjectName(filename, contentType, s.now())
	if _, err := s.client.PutObject(ctx, s.bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", storageUnavailable("failed to upload image", err)
	}

	span.SetAttributes(attribute.String("storage.object", objectName))
	return s.baseURL + "/" + objectName, nil
}

func storageUnavailable(message string, cause error) error {
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, message, cause.Error(), cause)
}
