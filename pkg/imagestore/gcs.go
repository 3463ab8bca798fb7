package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/angelmondragon/sheerent-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// objectStore is the slice of the storage client the image store uses.
type objectStore interface {
	NewWriter(ctx context.Context, bucket, key, contentType string) io.WriteCloser
	NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Close() error
}

type gcsObjects struct {
	client *storage.Client
}

func (o gcsObjects) NewWriter(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
	w := o.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (o gcsObjects) NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return o.client.Bucket(bucket).Object(key).NewReader(ctx)
}

func (o gcsObjects) Close() error {
	return o.client.Close()
}

// GCS stores images as objects in a single bucket. References use gs://bucket/key.
type GCS struct {
	objects objectStore
	bucket  string
}

func NewGCS(ctx context.Context, bucket string, gcp config.GCPConfig, logg *logger.Logger) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs image store initialized")
	}
	return &GCS{objects: gcsObjects{client: client}, bucket: bucket}, nil
}

func (g *GCS) Save(ctx context.Context, key string, data []byte) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	w := g.objects.NewWriter(ctx, g.bucket, cleaned, "image/jpeg")
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "write image object")
	}
	if err := w.Close(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "finalize image object")
	}
	return gcsScheme + g.bucket + "/" + cleaned, nil
}

func (g *GCS) Read(ctx context.Context, ref string) ([]byte, error) {
	bucket, key := g.split(ref)
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, notFound(ref)
	}
	r, err := g.objects.NewReader(ctx, bucket, cleaned)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(ref)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "open image object")
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read image object")
	}
	return data, nil
}

func (g *GCS) Close() error {
	return g.objects.Close()
}

// split resolves gs:// references; bare keys resolve against the configured bucket.
func (g *GCS) split(ref string) (string, string) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, gcsScheme) {
		return g.bucket, trimmed
	}
	rest := strings.TrimPrefix(trimmed, gcsScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found {
		return g.bucket, ""
	}
	return bucket, key
}
