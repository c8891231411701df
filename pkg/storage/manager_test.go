package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

type fakeAdapter struct {
	name      string
	available bool
	uploadErr error
	deleteErr error
	deleted   []string
	lastT     Transform
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Upload(_ context.Context, payload []byte, name, folder string, _ enums.MediaKind) (*UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &UploadResult{URL: "https://" + f.name + "/" + folder + "/" + name, StorageID: f.name + "-" + name, Size: int64(len(payload))}, nil
}

func (f *fakeAdapter) UploadWithTransform(ctx context.Context, payload []byte, name, folder string, t Transform) (*UploadResult, error) {
	f.lastT = t
	return f.Upload(ctx, payload, name, folder, enums.MediaKindImage)
}

func (f *fakeAdapter) Delete(_ context.Context, storageID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, storageID)
	return nil
}

func (f *fakeAdapter) OptimisedURL(url string, t Transform) string {
	f.lastT = t
	return url + "?via=" + f.name
}

func (f *fakeAdapter) ThumbnailURL(url string, width, height, quality int) string {
	return f.OptimisedURL(url, ThumbnailTransform(width, height, quality))
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
}

func TestNewManagerElectsPreferred(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true}
	cl := &fakeAdapter{name: "cloudinary", available: true}

	m, err := NewManager(context.Background(), "Cloudinary", quietLogger(), ik, cl)
	require.NoError(t, err)
	assert.Equal(t, "cloudinary", m.ActiveName())
	assert.Equal(t, []string{"imagekit", "cloudinary"}, m.Providers())
}

func TestNewManagerFallsBackToFirstAvailable(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	ik := &fakeAdapter{name: "imagekit", available: false}
	cl := &fakeAdapter{name: "cloudinary", available: false}
	gcs := &fakeAdapter{name: "gcs", available: true}

	m, err := NewManager(context.Background(), "imagekit", logg, ik, cl, gcs)
	require.NoError(t, err)
	assert.Equal(t, "gcs", m.ActiveName())
	assert.Contains(t, buf.String(), "using fallback")
}

func TestNewManagerKeepsPreferredWhenNothingAvailable(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit"}
	cl := &fakeAdapter{name: "cloudinary"}

	m, err := NewManager(context.Background(), "cloudinary", quietLogger(), ik, cl)
	require.NoError(t, err)
	assert.Equal(t, "cloudinary", m.ActiveName())
	assert.False(t, m.Available())
}

func TestNewManagerRejectsDuplicates(t *testing.T) {
	_, err := NewManager(context.Background(), "a", nil, &fakeAdapter{name: "a"}, &fakeAdapter{name: "A"})
	require.Error(t, err)

	_, err = NewManager(context.Background(), "a", nil)
	require.Error(t, err)
}

func TestSwitchProvider(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true}
	cl := &fakeAdapter{name: "cloudinary", available: true}
	off := &fakeAdapter{name: "gcs", available: false}

	m, err := NewManager(context.Background(), "imagekit", quietLogger(), ik, cl, off)
	require.NoError(t, err)

	require.NoError(t, m.SwitchProvider(context.Background(), "cloudinary"))
	assert.Equal(t, "cloudinary", m.ActiveName())

	err = m.SwitchProvider(context.Background(), "gcs")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, "cloudinary", m.ActiveName())

	err = m.SwitchProvider(context.Background(), "s3")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestManagerDelegatesToActive(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true}
	m, err := NewManager(context.Background(), "imagekit", quietLogger(), ik)
	require.NoError(t, err)

	res, err := m.Upload(context.Background(), []byte("abc"), "rocky.jpg", "cocks/7", enums.MediaKindImage)
	require.NoError(t, err)
	assert.Equal(t, "imagekit:imagekit-rocky.jpg", res.StorageID)
	assert.Equal(t, int64(3), res.Size)

	_, err = m.UploadImage(context.Background(), []byte("abc"), "a.jpg", "x", 640, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, ik.lastT.Quality)
	assert.Equal(t, CropAtMax, ik.lastT.Crop)

	assert.True(t, m.Delete(context.Background(), res.StorageID))
	assert.Equal(t, []string{"imagekit-rocky.jpg"}, ik.deleted)
	assert.False(t, m.Delete(context.Background(), "  "))

	assert.Equal(t, "u?via=imagekit", m.ThumbnailURL("u", 100, 100, 70))
}

func TestDeleteFollowsStorageIDAfterSwitch(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true}
	cl := &fakeAdapter{name: "cloudinary", available: true}
	m, err := NewManager(context.Background(), "imagekit", quietLogger(), ik, cl)
	require.NoError(t, err)

	res, err := m.Upload(context.Background(), []byte("abc"), "rocky.jpg", "cocks/7", enums.MediaKindImage)
	require.NoError(t, err)
	require.NoError(t, m.SwitchProvider(context.Background(), "cloudinary"))

	clip, err := m.Upload(context.Background(), []byte("vid"), "pelea.mp4", "fights/3", enums.MediaKindVideo)
	require.NoError(t, err)
	assert.Equal(t, "cloudinary:cloudinary-pelea.mp4", clip.StorageID)

	assert.True(t, m.Delete(context.Background(), res.StorageID))
	assert.True(t, m.Delete(context.Background(), clip.StorageID))
	assert.Equal(t, []string{"imagekit-rocky.jpg"}, ik.deleted)
	assert.Equal(t, []string{"cloudinary-pelea.mp4"}, cl.deleted)

	// ids stored before prefixing go to the active adapter as they are
	assert.True(t, m.Delete(context.Background(), "image:legacy/a"))
	assert.Equal(t, []string{"cloudinary-pelea.mp4", "image:legacy/a"}, cl.deleted)
}

func TestManagerUploadFailureIsProviderFailed(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true, uploadErr: errors.New("503")}
	m, err := NewManager(context.Background(), "imagekit", quietLogger(), ik)
	require.NoError(t, err)

	res, err := m.Upload(context.Background(), []byte("abc"), "a", "b", enums.MediaKindImage)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, ReasonProviderFailed))
}

func TestManagerDeleteFailureReturnsFalse(t *testing.T) {
	ik := &fakeAdapter{name: "imagekit", available: true, deleteErr: errors.New("gone")}
	m, err := NewManager(context.Background(), "imagekit", quietLogger(), ik)
	require.NoError(t, err)
	assert.False(t, m.Delete(context.Background(), "id"))
}

func TestTransformNormalize(t *testing.T) {
	got := Transform{Quality: 150, Crop: "zoom", Format: "gif", Width: -1}.Normalize()
	assert.Equal(t, 100, got.Quality)
	assert.Equal(t, CropMaintainRatio, got.Crop)
	assert.Equal(t, FormatAuto, got.Format)
	assert.Equal(t, 0, got.Width)

	assert.Equal(t, DefaultQuality, Transform{}.Normalize().Quality)
}

func TestSniff(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	limits := Limits{MaxImageBytes: 1024, MaxVideoBytes: 4096}

	kind, mime, err := Sniff(png, enums.MediaKindAuto, limits)
	require.NoError(t, err)
	assert.Equal(t, enums.MediaKindImage, kind)
	assert.Equal(t, "image/png", mime)

	_, _, err = Sniff(png, enums.MediaKindVideo, limits)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = Sniff([]byte("plain text payload"), enums.MediaKindAuto, limits)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	big := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...)
	_, _, err = Sniff(big, enums.MediaKindImage, limits)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = Sniff(nil, enums.MediaKindImage, limits)
	assert.Error(t, err)
}
