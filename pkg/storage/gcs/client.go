package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

const ProviderName = "gcs"

// objectStore is the slice of the bucket API the adapter needs.
type objectStore interface {
	Write(ctx context.Context, object, contentType string, data []byte) (int64, error)
	Delete(ctx context.Context, object string) error
}

// Client stores media as plain bucket objects. GCS has no delivery-time
// transformation service, so derived URLs equal the input URL.
type Client struct {
	store      objectStore
	bucket     string
	publicBase string
	closer     func() error
	logg       *logger.Logger
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	c := &Client{
		bucket:     strings.TrimSpace(cfg.BucketName),
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logg:       logg,
	}
	if c.bucket == "" {
		return c, nil
	}

	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	sc, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	c.store = &bucketStore{bucket: sc.Bucket(c.bucket)}
	c.closer = sc.Close

	if logg != nil {
		logg.Info(logg.WithProvider(ctx, ProviderName), "gcs client initialized")
	}
	return c, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Available() bool {
	return c != nil && c.store != nil && c.bucket != ""
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error) {
	if !c.Available() {
		return nil, storage.ErrUnavailable
	}
	object := objectName(folder, name)
	contentType := http.DetectContentType(payload)

	size, err := c.store.Write(ctx, object, contentType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to write GCS object %s: %w", object, err)
	}

	return &storage.UploadResult{
		URL:       c.publicBase + "/" + c.bucket + "/" + object,
		StorageID: object,
		Size:      size,
	}, nil
}

func (c *Client) UploadWithTransform(ctx context.Context, payload []byte, name, folder string, _ storage.Transform) (*storage.UploadResult, error) {
	return c.Upload(ctx, payload, name, folder, enums.MediaKindImage)
}

func (c *Client) Delete(ctx context.Context, storageID string) error {
	if !c.Available() {
		return storage.ErrUnavailable
	}
	if err := c.store.Delete(ctx, storageID); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", storageID, err)
	}
	return nil
}

func (c *Client) OptimisedURL(url string, _ storage.Transform) string { return url }

func (c *Client) ThumbnailURL(url string, _, _, _ int) string { return url }

// objectName prefixes the logical name with a random token so repeated
// uploads of the same file name never collide.
func objectName(folder, name string) string {
	base := path.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		base = "file"
	}
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()[:8]+"-"+base)
}

type bucketStore struct {
	bucket *gcstorage.BucketHandle
}

func (b *bucketStore) Write(ctx context.Context, object, contentType string, data []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"

	n, err := w.Write(data)
	if err != nil {
		_ = w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return int64(n), nil
}

func (b *bucketStore) Delete(ctx context.Context, object string) error {
	return b.bucket.Object(object).Delete(ctx)
}
