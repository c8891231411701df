package imagekit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	ik "github.com/imagekit-developer/imagekit-go"
	"github.com/imagekit-developer/imagekit-go/api/uploader"
	ikurl "github.com/imagekit-developer/imagekit-go/url"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

const ProviderName = "imagekit"

// sdkAPI is the slice of the ImageKit SDK the adapter drives.
type sdkAPI interface {
	Upload(ctx context.Context, file io.Reader, param uploader.UploadParam) (*uploader.UploadResult, error)
	DeleteFile(ctx context.Context, fileID string) error
	URL(param ikurl.UrlParam) (string, error)
}

type sdkClient struct {
	ik *ik.ImageKit
}

func (s sdkClient) Upload(ctx context.Context, file io.Reader, param uploader.UploadParam) (*uploader.UploadResult, error) {
	resp, err := s.ik.Uploader.Upload(ctx, file, param)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s sdkClient) DeleteFile(ctx context.Context, fileID string) error {
	_, err := s.ik.Media.DeleteFile(ctx, fileID)
	return err
}

func (s sdkClient) URL(param ikurl.UrlParam) (string, error) {
	return s.ik.Url(param)
}

// Client adapts the ImageKit SDK. Transformations are applied by ImageKit at
// delivery time through the tr query parameter.
type Client struct {
	api  sdkAPI
	logg *logger.Logger
}

func New(cfg config.ImageKitConfig, logg *logger.Logger) *Client {
	if !cfg.Complete() {
		return &Client{logg: logg}
	}
	return &Client{
		api: sdkClient{ik: ik.NewFromParams(ik.NewParams{
			PrivateKey:  strings.TrimSpace(cfg.PrivateKey),
			PublicKey:   strings.TrimSpace(cfg.PublicKey),
			UrlEndpoint: strings.TrimSpace(cfg.URLEndpoint),
		})},
		logg: logg,
	}
}

func newWithAPI(api sdkAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

func (c *Client) Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error) {
	if !c.Available() {
		return nil, storage.ErrUnavailable
	}
	unique := true
	param := uploader.UploadParam{
		FileName:          name,
		Folder:            "/" + strings.Trim(folder, "/"),
		UseUniqueFileName: &unique,
	}
	if kind == enums.MediaKindVideo {
		param.Tags = "video"
	}
	res, err := c.api.Upload(ctx, bytes.NewReader(payload), param)
	if err != nil {
		return nil, fmt.Errorf("imagekit upload: %w", err)
	}
	if res == nil || res.FileId == "" || res.Url == "" {
		return nil, errors.New("imagekit upload returned no file id or url")
	}
	return &storage.UploadResult{
		URL:          res.Url,
		StorageID:    res.FileId,
		Width:        int(res.Width),
		Height:       int(res.Height),
		Size:         int64(res.Size),
		ThumbnailURL: res.ThumbnailUrl,
	}, nil
}

// UploadWithTransform stores the original and returns the transformed
// delivery URL.
func (c *Client) UploadWithTransform(ctx context.Context, payload []byte, name, folder string, t storage.Transform) (*storage.UploadResult, error) {
	res, err := c.Upload(ctx, payload, name, folder, enums.MediaKindImage)
	if err != nil {
		return nil, err
	}
	res.URL = c.OptimisedURL(res.URL, t)
	if res.ThumbnailURL == "" {
		res.ThumbnailURL = c.ThumbnailURL(res.URL, 200, 200, storage.DefaultQuality)
	}
	return res, nil
}

func (c *Client) Delete(ctx context.Context, storageID string) error {
	if !c.Available() {
		return storage.ErrUnavailable
	}
	if err := c.api.DeleteFile(ctx, storageID); err != nil {
		return fmt.Errorf("imagekit delete %s: %w", storageID, err)
	}
	return nil
}

// OptimisedURL asks the SDK for rawURL with the transformation chain
// appended. The source URL is returned when the SDK cannot build one.
func (c *Client) OptimisedURL(rawURL string, t storage.Transform) string {
	if rawURL == "" || !c.Available() {
		return rawURL
	}
	out, err := c.api.URL(ikurl.UrlParam{
		Src:             rawURL,
		Transformations: []map[string]any{transformation(t)},
	})
	if err != nil || out == "" {
		return rawURL
	}
	return out
}

func (c *Client) ThumbnailURL(rawURL string, width, height, quality int) string {
	return c.OptimisedURL(rawURL, storage.ThumbnailTransform(width, height, quality))
}

func transformation(t storage.Transform) map[string]any {
	t = t.Normalize()
	step := map[string]any{
		"quality": t.Quality,
		"crop":    string(t.Crop),
		"format":  string(t.Format),
	}
	if t.Width > 0 {
		step["width"] = t.Width
	}
	if t.Height > 0 {
		step["height"] = t.Height
	}
	return step
}
