package cloudinary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

const ProviderName = "cloudinary"

var cropTokens = map[storage.Crop]string{
	storage.CropMaintainRatio: "c_fit",
	storage.CropForce:         "c_scale",
	storage.CropAtLeast:       "c_mfit",
	storage.CropAtMax:         "c_limit",
}

type uploaderAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Client adapts the Cloudinary SDK. Deleting needs the resource type as well
// as the public id, so storage ids are encoded as "<resource_type>:<public_id>".
type Client struct {
	api  uploaderAPI
	logg *logger.Logger
}

func New(cfg config.CloudinaryConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Complete() {
		return &Client{logg: logg}, nil
	}
	sdk, err := cld.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return &Client{api: &sdk.Upload, logg: logg}, nil
}

func newWithAPI(api uploaderAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

func (c *Client) Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error) {
	return c.upload(ctx, payload, name, folder, resourceType(kind), "")
}

func (c *Client) UploadWithTransform(ctx context.Context, payload []byte, name, folder string, t storage.Transform) (*storage.UploadResult, error) {
	return c.upload(ctx, payload, name, folder, "image", transformation(t))
}

func (c *Client) upload(ctx context.Context, payload []byte, name, folder, resType, tr string) (*storage.UploadResult, error) {
	if !c.Available() {
		return nil, storage.ErrUnavailable
	}
	overwrite := false
	params := uploader.UploadParams{
		PublicID:       publicID(name),
		Folder:         strings.Trim(folder, "/"),
		ResourceType:   resType,
		Overwrite:      &overwrite,
		Transformation: tr,
	}
	res, err := c.api.Upload(ctx, bytes.NewReader(payload), params)
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil {
		return nil, errors.New("cloudinary upload returned no result")
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}

	kind := res.ResourceType
	if kind == "" {
		kind = resType
	}
	out := &storage.UploadResult{
		URL:       res.SecureURL,
		StorageID: kind + ":" + res.PublicID,
		Width:     res.Width,
		Height:    res.Height,
		Size:      int64(res.Bytes),
	}
	if kind == "image" {
		out.ThumbnailURL = c.ThumbnailURL(res.SecureURL, 200, 200, storage.DefaultQuality)
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, storageID string) error {
	if !c.Available() {
		return storage.ErrUnavailable
	}
	resType, id := splitStorageID(storageID)
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{PublicID: id, ResourceType: resType})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res == nil {
		return errors.New("cloudinary destroy returned no result")
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy: unexpected result %q", res.Result)
	}
	return nil
}

// OptimisedURL injects a transformation segment after "/upload/" in a
// delivery URL, e.g. .../image/upload/w_300,q_80,c_limit,f_auto/v1/x.jpg.
func (c *Client) OptimisedURL(rawURL string, t storage.Transform) string {
	const marker = "/upload/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return rawURL
	}
	cut := idx + len(marker)
	return rawURL[:cut] + transformation(t) + "/" + rawURL[cut:]
}

func (c *Client) ThumbnailURL(rawURL string, width, height, quality int) string {
	return c.OptimisedURL(rawURL, storage.ThumbnailTransform(width, height, quality))
}

func transformation(t storage.Transform) string {
	t = t.Normalize()
	parts := make([]string, 0, 5)
	if t.Width > 0 {
		parts = append(parts, "w_"+strconv.Itoa(t.Width))
	}
	if t.Height > 0 {
		parts = append(parts, "h_"+strconv.Itoa(t.Height))
	}
	parts = append(parts, cropTokens[t.Crop])
	parts = append(parts, "q_"+strconv.Itoa(t.Quality))
	parts = append(parts, "f_"+string(t.Format))
	return strings.Join(parts, ",")
}

func resourceType(kind enums.MediaKind) string {
	switch kind {
	case enums.MediaKindImage:
		return "image"
	case enums.MediaKindVideo:
		return "video"
	default:
		return "auto"
	}
}

// publicID keeps the file stem for readability and appends a random suffix,
// so two uploads of rocky.jpg into one owner folder never replace each other.
func publicID(name string) string {
	base := path.Base(name)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "media"
	}
	return stem + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func splitStorageID(storageID string) (string, string) {
	if kind, id, ok := strings.Cut(storageID, ":"); ok && (kind == "image" || kind == "video" || kind == "raw") {
		return kind, id
	}
	return "image", storageID
}
