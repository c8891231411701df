package gcs

import (
	"context"
	"errors"
	"strings"
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

type memStore struct {
	objects   map[string][]byte
	types     map[string]string
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Write(_ context.Context, object, contentType string, data []byte) (int64, error) {
	m.objects[object] = data
	m.types[object] = contentType
	return int64(len(data)), nil
}

func (m *memStore) Delete(_ context.Context, object string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.objects[object]; !ok {
		return gcstorage.ErrObjectNotExist
	}
	delete(m.objects, object)
	return nil
}

func TestNewClientWithoutBucketIsUnavailable(t *testing.T) {
	c, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, c.Available())
	assert.NoError(t, c.Close())
}

func TestUploadAndDelete(t *testing.T) {
	mem := newMemStore()
	c := &Client{store: mem, bucket: "gallo-media", publicBase: "https://storage.googleapis.com"}

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	res, err := c.Upload(context.Background(), png, "rocky.png", "/gallotrack/cocks/7/", enums.MediaKindImage)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.StorageID, "gallotrack/cocks/7/"))
	assert.True(t, strings.HasSuffix(res.StorageID, "-rocky.png"))
	assert.Equal(t, "https://storage.googleapis.com/gallo-media/"+res.StorageID, res.URL)
	assert.Equal(t, "image/png", mem.types[res.StorageID])
	assert.Equal(t, int64(len(png)), res.Size)

	require.NoError(t, c.Delete(context.Background(), res.StorageID))
	assert.Empty(t, mem.objects)

	// already gone is not an error
	require.NoError(t, c.Delete(context.Background(), res.StorageID))

	mem.deleteErr = errors.New("permission denied")
	require.Error(t, c.Delete(context.Background(), "x"))
}

func TestURLsAreUnchanged(t *testing.T) {
	c := &Client{}
	u := "https://storage.googleapis.com/b/o.jpg"
	assert.Equal(t, u, c.OptimisedURL(u, storage.Transform{Width: 10}))
	assert.Equal(t, u, c.ThumbnailURL(u, 10, 10, 10))
}

func TestObjectNameIsUnique(t *testing.T) {
	a := objectName("f", "x.jpg")
	b := objectName("f", "x.jpg")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(objectName("", "../x.jpg"), "-x.jpg"))
}
