package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     *contextutils.AppError
	}{
		{name: "jpeg ok", contentType: "image/jpeg", size: 1024},
		{name: "png with params ok", contentType: "image/png; charset=binary", size: 10},
		{name: "pdf rejected", contentType: "application/pdf", size: 10, wantErr: contextutils.ErrInvalidFormat},
		{name: "garbage type", contentType: ";;", size: 10, wantErr: contextutils.ErrInvalidFormat},
		{name: "empty", contentType: "image/jpeg", size: 0, wantErr: contextutils.ErrInvalidInput},
		{name: "too large", contentType: "image/jpeg", size: 6 << 20, wantErr: contextutils.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.contentType, tt.size, 5<<20)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, contextutils.IsError(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestObjectName(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	name := ObjectName("IMG_001.JPG", "image/jpeg", now)
	assert.True(t, strings.HasPrefix(name, "reports/2024/03/"), name)
	assert.True(t, strings.HasSuffix(name, ".jpg"), name)

	noExt := ObjectName("blob", "image/png", now)
	assert.True(t, strings.HasSuffix(noExt, ".png"), noExt)

	assert.NotEqual(t, name, ObjectName("IMG_001.JPG", "image/jpeg", now))
}

type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	failPuts bool
	requests []string
}

// ServeHTTP answers the path-style requests minio-go sends: bucket calls go to
// "/<bucket>/" and object calls to "/<bucket>/<key>"
func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, object, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch {
	case object == "" && r.Method == http.MethodGet && r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
	case object == "" && r.Method == http.MethodHead:
		if f.buckets[bucket] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case object == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.Header().Set("Location", "/"+bucket)
		w.WriteHeader(http.StatusOK)
	case object != "" && r.Method == http.MethodPut:
		if f.failPuts {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
			return
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		f.objects[bucket+"/"+object] = buf.Bytes()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) seen(request string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == request {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T, s3 *fakeS3) *MinioImageStore {
	server := httptest.NewServer(s3)
	t.Cleanup(server.Close)

	store, err := NewMinioImageStore(config.StorageConfig{
		Endpoint:      strings.TrimPrefix(server.URL, "http://"),
		AccessKey:     "minio",
		SecretKey:     "minio123",
		Bucket:        "report-images",
		PublicBaseURL: "https://cdn.example.com/report-images/",
	}, observability.NewNopLogger())
	require.NoError(t, err)
	return store
}

func TestMinioImageStore_StartupCreatesBucket(t *testing.T) {
	s3 := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	store := newTestStore(t, s3)

	require.NoError(t, store.Startup(context.Background()))
	assert.True(t, s3.buckets["report-images"])
	assert.True(t, s3.seen("HEAD /report-images/"))
	assert.True(t, s3.seen("PUT /report-images/"))

	// Second startup finds the bucket and creates nothing
	s3.mu.Lock()
	s3.requests = nil
	s3.mu.Unlock()
	require.NoError(t, store.Startup(context.Background()))
	assert.True(t, s3.seen("HEAD /report-images/"))
	assert.False(t, s3.seen("PUT /report-images/"))
}

func TestMinioImageStore_Save(t *testing.T) {
	s3 := &fakeS3{buckets: map[string]bool{"report-images": true}, objects: map[string][]byte{}}
	store := newTestStore(t, s3)
	store.now = func() time.Time { return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) }

	payload := []byte("fake-jpeg-bytes")
	url, err := store.Save(context.Background(), "pothole.jpg", "image/jpeg", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/report-images/reports/2024/03/"), url)
	assert.True(t, strings.HasSuffix(url, ".jpg"), url)
	require.Len(t, s3.objects, 1)
	for key, body := range s3.objects {
		assert.True(t, strings.HasPrefix(key, "report-images/reports/2024/03/"), key)
		assert.Equal(t, payload, body)
	}
}

func TestMinioImageStore_SaveFailure(t *testing.T) {
	s3 := &fakeS3{buckets: map[string]bool{"report-images": true}, objects: map[string][]byte{}, failPuts: true}
	store := newTestStore(t, s3)

	_, err := store.Save(context.Background(), "pothole.jpg", "image/jpeg", bytes.NewReader([]byte("x")), 1)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrServiceUnavailable))
}
