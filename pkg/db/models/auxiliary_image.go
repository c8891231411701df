package models

import (
	"encoding/json"
	"time"
)

// AuxiliaryImage is one entry of a cock's ordered gallery.
type AuxiliaryImage struct {
	URL         string    `json:"url"`
	StorageID   string    `json:"storage_id"`
	Order       int       `json:"order"`
	IsPrincipal bool      `json:"is_principal"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UnmarshalJSON accepts the older gallery shape that stored the provider
// handle under file_id and carried an extra file_size field.
func (a *AuxiliaryImage) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL         string     `json:"url"`
		StorageID   string     `json:"storage_id"`
		FileID      string     `json:"file_id"`
		Order       int        `json:"order"`
		IsPrincipal bool       `json:"is_principal"`
		UploadedAt  *time.Time `json:"uploaded_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.URL = raw.URL
	a.StorageID = raw.StorageID
	if a.StorageID == "" {
		a.StorageID = raw.FileID
	}
	a.Order = raw.Order
	a.IsPrincipal = raw.IsPrincipal
	a.UploadedAt = time.Time{}
	if raw.UploadedAt != nil {
		a.UploadedAt = *raw.UploadedAt
	}
	return nil
}
