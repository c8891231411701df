// Package storage defines the media persistence contract shared by every
// provider adapter and the manager that selects the active one.
package storage

import (
	"context"
	"errors"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// ErrUnavailable is returned when an adapter is asked to do work without a
// complete configuration.
var ErrUnavailable = errors.New("storage adapter not available")

type Crop string

const (
	CropMaintainRatio Crop = "maintain_ratio"
	CropForce         Crop = "force"
	CropAtLeast       Crop = "at_least"
	CropAtMax         Crop = "at_max"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

const DefaultQuality = 80

// Transform is the provider-neutral description of a derived variant.
// Width and Height of zero mean "keep the source dimension".
type Transform struct {
	Width   int
	Height  int
	Quality int
	Crop    Crop
	Format  Format
}

// Normalize fills defaults and clamps quality to 1..100.
func (t Transform) Normalize() Transform {
	if t.Quality <= 0 {
		t.Quality = DefaultQuality
	}
	if t.Quality > 100 {
		t.Quality = 100
	}
	if t.Width < 0 {
		t.Width = 0
	}
	if t.Height < 0 {
		t.Height = 0
	}
	switch t.Crop {
	case CropMaintainRatio, CropForce, CropAtLeast, CropAtMax:
	default:
		t.Crop = CropMaintainRatio
	}
	switch t.Format {
	case FormatAuto, FormatJPG, FormatPNG, FormatWebP:
	default:
		t.Format = FormatAuto
	}
	return t
}

// ThumbnailTransform is the transform used by ThumbnailURL helpers.
func ThumbnailTransform(width, height, quality int) Transform {
	return Transform{
		Width:   width,
		Height:  height,
		Quality: quality,
		Crop:    CropAtMax,
		Format:  FormatAuto,
	}.Normalize()
}

// UploadResult describes a stored object. StorageID is the only handle that
// can later delete it and must be persisted by the caller.
type UploadResult struct {
	URL          string `json:"url"`
	StorageID    string `json:"storage_id"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Size         int64  `json:"size,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Adapter is implemented by every concrete media provider.
type Adapter interface {
	Name() string
	Available() bool
	Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*UploadResult, error)
	UploadWithTransform(ctx context.Context, payload []byte, name, folder string, t Transform) (*UploadResult, error)
	Delete(ctx context.Context, storageID string) error
	OptimisedURL(url string, t Transform) string
	ThumbnailURL(url string, width, height, quality int) string
}
