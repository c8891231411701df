package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// Cock is a single bird in an owner's pedigree. Records created in the same
// family share CohortKey, which equals the ID of the root record.
type Cock struct {
	ID                      uint64                              `gorm:"primaryKey;autoIncrement"`
	OwnerID                 uint64                              `gorm:"column:owner_id;not null;uniqueIndex:idx_cocks_owner_code,priority:1;index"`
	Name                    string                              `gorm:"column:name;not null"`
	Code                    string                              `gorm:"column:code;not null;uniqueIndex:idx_cocks_owner_code,priority:2"`
	WeightGrams             *int                                `gorm:"column:weight_grams"`
	HeightCM                *int                                `gorm:"column:height_cm"`
	Colour                  *string                             `gorm:"column:colour"`
	Breed                   *string                             `gorm:"column:breed"`
	BirthDate               *time.Time                          `gorm:"column:birth_date"`
	Notes                   *string                             `gorm:"column:notes"`
	Status                  enums.CockStatus                    `gorm:"column:status;not null;default:'active'"`
	CohortKey               *uint64                             `gorm:"column:cohort_key;index"`
	SireID                  *uint64                             `gorm:"column:sire_id;index"`
	DamID                   *uint64                             `gorm:"column:dam_id;index"`
	OriginKind              enums.OriginKind                    `gorm:"column:origin_kind;not null;default:'principal'"`
	PrincipalImageURL       string                              `gorm:"column:principal_image_url;not null;default:''"`
	PrincipalImageStorageID string                              `gorm:"column:principal_image_storage_id;not null;default:''"`
	Auxiliary               datatypes.JSONSlice[AuxiliaryImage] `gorm:"column:auxiliary"`
	CreatedAt               time.Time                           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                           `gorm:"column:updated_at;autoUpdateTime"`
}

// HasAncestors reports whether either parent edge is set.
func (c *Cock) HasAncestors() bool {
	return c.SireID != nil || c.DamID != nil
}

// Cohort returns the cohort key, falling back to the record's own id for
// legacy rows stored without one.
func (c *Cock) Cohort() uint64 {
	if c.CohortKey == nil {
		return c.ID
	}
	return *c.CohortKey
}
