package imagekit

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/imagekit-developer/imagekit-go/api/uploader"
	ikurl "github.com/imagekit-developer/imagekit-go/url"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

type stubSDK struct {
	uploadParam  uploader.UploadParam
	uploadBody   []byte
	uploadResult *uploader.UploadResult
	uploadErr    error
	deleted      []string
	deleteErr    error
	urlParam     ikurl.UrlParam
	urlErr       error
}

func (s *stubSDK) Upload(_ context.Context, file io.Reader, param uploader.UploadParam) (*uploader.UploadResult, error) {
	s.uploadParam = param
	s.uploadBody, _ = io.ReadAll(file)
	return s.uploadResult, s.uploadErr
}

func (s *stubSDK) DeleteFile(_ context.Context, fileID string) error {
	s.deleted = append(s.deleted, fileID)
	return s.deleteErr
}

func (s *stubSDK) URL(param ikurl.UrlParam) (string, error) {
	s.urlParam = param
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return param.Src + "?tr=stub", nil
}

func TestNewWithoutCredentialsIsUnavailable(t *testing.T) {
	c := New(config.ImageKitConfig{URLEndpoint: "https://ik.imagekit.io/gallo"}, nil)
	assert.False(t, c.Available())

	_, err := c.Upload(context.Background(), []byte("x"), "a.jpg", "f", enums.MediaKindImage)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.ErrorIs(t, c.Delete(context.Background(), "fid"), storage.ErrUnavailable)
	assert.Equal(t, "https://x/a.jpg", c.OptimisedURL("https://x/a.jpg", storage.Transform{}))

	var nilClient *Client
	assert.False(t, nilClient.Available())
}

func TestUploadMapsSDKResult(t *testing.T) {
	stub := &stubSDK{uploadResult: &uploader.UploadResult{
		FileId:       "fid_1",
		Url:          "https://ik.imagekit.io/gallo/gallotrack/cocks/7/rocky_k2.jpg",
		ThumbnailUrl: "https://ik.imagekit.io/gallo/tr:n-ik_ml_thumbnail/rocky_k2.jpg",
		Width:        800,
		Height:       600,
		Size:         9,
	}}
	c := newWithAPI(stub)

	res, err := c.Upload(context.Background(), []byte("img-bytes"), "rocky.jpg", "gallotrack/cocks/7/", enums.MediaKindImage)
	require.NoError(t, err)
	assert.Equal(t, "fid_1", res.StorageID)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, int64(9), res.Size)
	assert.Contains(t, res.ThumbnailURL, "ik_ml_thumbnail")

	assert.Equal(t, "rocky.jpg", stub.uploadParam.FileName)
	assert.Equal(t, "/gallotrack/cocks/7", stub.uploadParam.Folder)
	require.NotNil(t, stub.uploadParam.UseUniqueFileName)
	assert.True(t, *stub.uploadParam.UseUniqueFileName)
	assert.Empty(t, stub.uploadParam.Tags)
	assert.Equal(t, []byte("img-bytes"), stub.uploadBody)

	_, err = c.Upload(context.Background(), []byte("vid"), "pelea.mp4", "fights", enums.MediaKindVideo)
	require.NoError(t, err)
	assert.Equal(t, "video", stub.uploadParam.Tags)
}

func TestUploadSurfacesSDKFailures(t *testing.T) {
	stub := &stubSDK{uploadErr: errors.New("quota exceeded")}
	_, err := newWithAPI(stub).Upload(context.Background(), []byte("x"), "a.jpg", "f", enums.MediaKindImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	stub = &stubSDK{uploadResult: &uploader.UploadResult{Url: "https://ik/a.jpg"}}
	_, err = newWithAPI(stub).Upload(context.Background(), []byte("x"), "a.jpg", "f", enums.MediaKindImage)
	require.Error(t, err)
}

func TestUploadWithTransformReturnsDeliveryURL(t *testing.T) {
	stub := &stubSDK{uploadResult: &uploader.UploadResult{FileId: "fid_2", Url: "https://ik.imagekit.io/gallo/a.jpg"}}
	res, err := newWithAPI(stub).UploadWithTransform(context.Background(), []byte("x"), "a.jpg", "x", storage.Transform{Width: 800, Crop: storage.CropAtMax})
	require.NoError(t, err)
	assert.Equal(t, "https://ik.imagekit.io/gallo/a.jpg?tr=stub", res.URL)
	assert.NotEmpty(t, res.ThumbnailURL)
}

func TestDeleteUsesFileID(t *testing.T) {
	stub := &stubSDK{}
	c := newWithAPI(stub)
	require.NoError(t, c.Delete(context.Background(), "fid_1"))
	assert.Equal(t, []string{"fid_1"}, stub.deleted)

	stub.deleteErr = errors.New("500")
	require.Error(t, c.Delete(context.Background(), "fid_2"))
}

func TestOptimisedURLBuildsTransformation(t *testing.T) {
	stub := &stubSDK{}
	c := newWithAPI(stub)

	got := c.OptimisedURL("https://ik.imagekit.io/gallo/rocky.jpg", storage.Transform{
		Width:  300,
		Height: 200,
		Crop:   storage.CropForce,
		Format: storage.FormatWebP,
	})
	assert.Equal(t, "https://ik.imagekit.io/gallo/rocky.jpg?tr=stub", got)
	assert.Equal(t, "https://ik.imagekit.io/gallo/rocky.jpg", stub.urlParam.Src)
	assert.Equal(t, []map[string]any{{
		"width": 300, "height": 200, "quality": 80, "crop": "force", "format": "webp",
	}}, stub.urlParam.Transformations)

	c.ThumbnailURL("https://ik.imagekit.io/gallo/rocky.jpg", 100, 0, 60)
	assert.Equal(t, []map[string]any{{
		"width": 100, "quality": 60, "crop": "at_max", "format": "auto",
	}}, stub.urlParam.Transformations)

	stub.urlErr = errors.New("bad src")
	assert.Equal(t, "https://x/a.jpg", c.OptimisedURL("https://x/a.jpg", storage.Transform{}))
	assert.Equal(t, "", c.OptimisedURL("", storage.Transform{}))
}
