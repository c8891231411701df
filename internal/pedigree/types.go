package pedigree

import (
	"strings"
	"time"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
)

// DefaultTreeDepth bounds ancestor walks when the caller gives no depth.
const DefaultTreeDepth = 10

// cycleCheckDepth bounds the upward walk used to reject cyclic edges.
const cycleCheckDepth = 10

// CockFields are the user-supplied scalar fields of a cock.
type CockFields struct {
	Name        string
	Code        string
	WeightGrams *int
	HeightCM    *int
	Colour      *string
	Breed       *string
	BirthDate   *time.Time
	Notes       *string
	Status      enums.CockStatus
}

// NormalizeCode folds a short code to the stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (f CockFields) normalized() CockFields {
	f.Name = strings.TrimSpace(f.Name)
	f.Code = NormalizeCode(f.Code)
	return f
}

func (f CockFields) validate(field string) error {
	if f.Name == "" {
		return errValidation(field+".name", "name is required")
	}
	if f.Code == "" {
		return errValidation(field+".code", "code is required")
	}
	if f.Status != "" && !f.Status.IsValid() {
		return errValidation(field+".status", "invalid status")
	}
	return nil
}

func (f CockFields) toModel(ownerID uint64) *models.Cock {
	status := f.Status
	if status == "" {
		status = enums.CockStatusActive
	}
	return &models.Cock{
		OwnerID:     ownerID,
		Name:        f.Name,
		Code:        f.Code,
		WeightGrams: f.WeightGrams,
		HeightCM:    f.HeightCM,
		Colour:      f.Colour,
		Breed:       f.Breed,
		BirthDate:   f.BirthDate,
		Notes:       f.Notes,
		Status:      status,
		OriginKind:  enums.OriginPrincipal,
	}
}

// AncestorSpec selects one parent: either synthesise a new record from
// Fields or attach the existing cock Ref. Exactly one must be set.
type AncestorSpec struct {
	Fields *CockFields
	Ref    *uint64
}

// Upload is raw media supplied by the caller.
type Upload struct {
	Payload []byte
	Name    string
}

// CreateInput drives CreateWithAncestors.
type CreateInput struct {
	Primary        CockFields
	Sire           *AncestorSpec
	Dam            *AncestorSpec
	PrincipalImage *Upload
	Auxiliary      []Upload
}

// CreateResult reports the family written by CreateWithAncestors.
type CreateResult struct {
	Primary      *models.Cock
	Sire         *models.Cock
	Dam          *models.Cock
	CohortKey    uint64
	CreatedCount int
}

// ExtendResult lists ancestors synthesised by ExtendAncestry.
type ExtendResult struct {
	Target  *models.Cock
	Created []models.Cock
}

// ParentRef is a patch to one parent edge. Set with a nil ID clears the edge.
type ParentRef struct {
	Set bool
	ID  *uint64
}

// CockPatch updates scalar fields and, optionally, parent edges. Cohort key
// and origin kind are never patchable.
type CockPatch struct {
	Name        *string
	Code        *string
	WeightGrams *int
	HeightCM    *int
	Colour      *string
	Breed       *string
	BirthDate   *time.Time
	Notes       *string
	Status      *enums.CockStatus
	Sire        ParentRef
	Dam         ParentRef
}

// ListFilter narrows ListCocks.
type ListFilter struct {
	Status *enums.CockStatus
	Search string
	Limit  int
	Offset int
}

// DeleteResult lists everything removed by DeleteCock.
type DeleteResult struct {
	CockID      uint64   `json:"cock_id"`
	Trainings   []uint64 `json:"trainings"`
	Fights      []uint64 `json:"fights"`
	Vaccines    []uint64 `json:"vaccines"`
	Listings    []uint64 `json:"listings"`
	Unlinked    []uint64 `json:"unlinked_children"`
	MediaErrors int      `json:"media_errors"`
}

// Summary is the per-node payload of an ancestor tree.
type Summary struct {
	ID                uint64           `json:"id"`
	Name              string           `json:"name"`
	Code              string           `json:"code"`
	Status            enums.CockStatus `json:"status"`
	OriginKind        enums.OriginKind `json:"origin_kind"`
	CohortKey         uint64           `json:"cohort_key"`
	Breed             *string          `json:"breed,omitempty"`
	Colour            *string          `json:"colour,omitempty"`
	PrincipalImageURL string           `json:"principal_image_url,omitempty"`
}

func summarize(c *models.Cock) Summary {
	return Summary{
		ID:                c.ID,
		Name:              c.Name,
		Code:              c.Code,
		Status:            c.Status,
		OriginKind:        c.OriginKind,
		CohortKey:         c.Cohort(),
		Breed:             c.Breed,
		Colour:            c.Colour,
		PrincipalImageURL: c.PrincipalImageURL,
	}
}

// Tree is a nested ancestor view rooted at one cock.
type Tree struct {
	Cock Summary `json:"cock"`
	Sire *Tree   `json:"sire"`
	Dam  *Tree   `json:"dam"`
}

// MediaObject is a stored provider object.
type MediaObject struct {
	URL       string
	StorageID string
}
