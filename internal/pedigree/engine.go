package pedigree

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type admitter interface {
	Require(ctx context.Context, ownerID uint64, kind enums.ResourceKind, cockID *uint64, n int) error
}

type mediaStore interface {
	Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*storage.UploadResult, error)
	Delete(ctx context.Context, storageID string) bool
}

// EngineParams groups dependencies for the pedigree engine.
type EngineParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Quota             admitter
	Media             mediaStore
	MediaLimits       storage.Limits
	RootFolder        string
	Logger            *logger.Logger
	Now               func() time.Time
}

// Engine is the only writer of cock families and the only reader of
// ancestor subgraphs.
type Engine struct {
	repo   Repository
	tx     txRunner
	quota  admitter
	media  mediaStore
	limits storage.Limits
	root   string
	logg   *logger.Logger
	now    func() time.Time
}

// NewEngine validates dependencies and builds an Engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Quota == nil {
		return nil, errors.New("quota service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	root := strings.Trim(params.RootFolder, "/")
	if root == "" {
		root = "gallotrack"
	}
	return &Engine{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		quota:  params.Quota,
		media:  params.Media,
		limits: params.MediaLimits,
		root:   root,
		logg:   params.Logger,
		now:    now,
	}, nil
}

// CreateWithAncestors inserts a cock together with optional synthesised or
// referenced parents. The family shares cohort key = primary id and is
// committed atomically.
func (e *Engine) CreateWithAncestors(ctx context.Context, ownerID uint64, in CreateInput) (*CreateResult, error) {
	primary := in.Primary.normalized()
	if err := primary.validate("primary"); err != nil {
		return nil, err
	}
	sire, err := normalizeSpec(in.Sire, "sire")
	if err != nil {
		return nil, err
	}
	dam, err := normalizeSpec(in.Dam, "dam")
	if err != nil {
		return nil, err
	}
	if sire != nil && dam != nil && sire.Ref != nil && dam.Ref != nil && *sire.Ref == *dam.Ref {
		return nil, errValidation("dam.ref", "sire and dam must differ")
	}

	codes := map[string]struct{}{primary.Code: {}}
	created := 1
	for _, spec := range []*AncestorSpec{sire, dam} {
		if spec == nil || spec.Fields == nil {
			continue
		}
		if _, dup := codes[spec.Fields.Code]; dup {
			return nil, errCodeTaken(spec.Fields.Code)
		}
		codes[spec.Fields.Code] = struct{}{}
		created++
	}

	if err := e.quota.Require(ctx, ownerID, enums.ResourceCocks, nil, created); err != nil {
		return nil, err
	}

	staged, err := e.stageUploads(ctx, ownerID, in.PrincipalImage, in.Auxiliary)
	if err != nil {
		return nil, err
	}

	var result *CreateResult
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := e.createFamily(ctx, e.repo.WithTx(tx), ownerID, primary, sire, dam, staged)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		e.discard(ctx, staged.storageIDs())
		return nil, err
	}

	if e.logg != nil {
		logCtx := e.logg.WithOwnerID(ctx, ownerID)
		logCtx = e.logg.WithFields(logCtx, map[string]any{
			"cohort_key": result.CohortKey,
			"created":    result.CreatedCount,
		})
		e.logg.Info(logCtx, "cock family created")
	}
	return result, nil
}

func (e *Engine) createFamily(ctx context.Context, repo Repository, ownerID uint64, primary CockFields, sire, dam *AncestorSpec, staged *stagedMedia) (*CreateResult, error) {
	taken, err := repo.CodeExists(ctx, ownerID, primary.Code, 0)
	if err != nil {
		return nil, errStorage(err, "check code")
	}
	if taken {
		return nil, errCodeTaken(primary.Code)
	}

	root := primary.toModel(ownerID)
	pending := uint64(0)
	root.CohortKey = &pending
	staged.applyTo(root, e.now().UTC())
	if err := repo.Create(ctx, root); err != nil {
		return nil, writeErr(err, primary.Code)
	}

	key := root.ID
	if err := repo.SetCohortKey(ctx, root.ID, key); err != nil {
		return nil, errStorage(err, "assign cohort key")
	}
	root.CohortKey = &key

	result := &CreateResult{Primary: root, CohortKey: key, CreatedCount: 1}

	sireRec, sireNew, err := e.resolveAncestor(ctx, repo, ownerID, key, sire, enums.OriginSynthesisedSire, enums.CockStatusSire)
	if err != nil {
		return nil, err
	}
	damRec, damNew, err := e.resolveAncestor(ctx, repo, ownerID, key, dam, enums.OriginSynthesisedDam, enums.CockStatusDam)
	if err != nil {
		return nil, err
	}
	if sireNew {
		result.CreatedCount++
	}
	if damNew {
		result.CreatedCount++
	}
	result.Sire, result.Dam = sireRec, damRec

	if sireRec != nil || damRec != nil {
		root.SireID, root.DamID = idOf(sireRec), idOf(damRec)
		if err := repo.SetParents(ctx, root.ID, root.SireID, root.DamID); err != nil {
			return nil, errStorage(err, "link ancestors")
		}
	}
	return result, nil
}

func (e *Engine) resolveAncestor(ctx context.Context, repo Repository, ownerID, cohort uint64, spec *AncestorSpec, origin enums.OriginKind, status enums.CockStatus) (*models.Cock, bool, error) {
	if spec == nil {
		return nil, false, nil
	}
	if spec.Ref != nil {
		found, err := repo.FindByID(ctx, ownerID, *spec.Ref)
		if err != nil {
			return nil, false, errStorage(err, "load ancestor")
		}
		if found == nil {
			return nil, false, errAncestorForeign(*spec.Ref)
		}
		return found, false, nil
	}

	fields := *spec.Fields
	taken, err := repo.CodeExists(ctx, ownerID, fields.Code, 0)
	if err != nil {
		return nil, false, errStorage(err, "check code")
	}
	if taken {
		return nil, false, errCodeTaken(fields.Code)
	}
	rec := fields.toModel(ownerID)
	rec.CohortKey = &cohort
	rec.OriginKind = origin
	rec.Status = status
	if err := repo.Create(ctx, rec); err != nil {
		return nil, false, writeErr(err, fields.Code)
	}
	return rec, true, nil
}

// ExtendAncestry synthesises parents for a cock that has none. New records
// inherit the target's cohort key.
func (e *Engine) ExtendAncestry(ctx context.Context, ownerID, targetID uint64, sire, dam *CockFields) (*ExtendResult, error) {
	specs := make([]*CockFields, 2)
	for i, f := range []*CockFields{sire, dam} {
		if f == nil {
			continue
		}
		n := f.normalized()
		if err := n.validate([]string{"sire", "dam"}[i]); err != nil {
			return nil, err
		}
		specs[i] = &n
	}
	if specs[0] == nil && specs[1] == nil {
		return nil, errValidation("sire", "at least one ancestor is required")
	}
	if specs[0] != nil && specs[1] != nil && specs[0].Code == specs[1].Code {
		return nil, errCodeTaken(specs[1].Code)
	}
	created := 0
	for _, s := range specs {
		if s != nil {
			created++
		}
	}
	if err := e.quota.Require(ctx, ownerID, enums.ResourceCocks, nil, created); err != nil {
		return nil, err
	}

	var result *ExtendResult
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		target, err := repo.FindForUpdate(ctx, ownerID, targetID)
		if err != nil {
			return errStorage(err, "load cock")
		}
		if target == nil {
			return errNotFound()
		}
		if target.HasAncestors() {
			return errAlreadyHasAncestors(target.ID)
		}

		cohort := target.Cohort()
		res := &ExtendResult{Target: target}
		origins := []enums.OriginKind{enums.OriginSynthesisedSire, enums.OriginSynthesisedDam}
		statuses := []enums.CockStatus{enums.CockStatusSire, enums.CockStatusDam}
		ids := make([]*uint64, 2)
		for i, fields := range specs {
			if fields == nil {
				continue
			}
			rec, _, err := e.resolveAncestor(ctx, repo, ownerID, cohort, &AncestorSpec{Fields: fields}, origins[i], statuses[i])
			if err != nil {
				return err
			}
			cyclic, err := wouldCycle(ctx, repo, ownerID, target.ID, rec.ID)
			if err != nil {
				return errStorage(err, "check ancestry")
			}
			if cyclic {
				return errCycle(target.ID, rec.ID)
			}
			id := rec.ID
			ids[i] = &id
			res.Created = append(res.Created, *rec)
		}

		if err := repo.SetParents(ctx, target.ID, ids[0], ids[1]); err != nil {
			return errStorage(err, "link ancestors")
		}
		target.SireID, target.DamID = ids[0], ids[1]
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCock patches scalar fields and parent edges. New parent edges are
// ownership and cycle checked.
func (e *Engine) UpdateCock(ctx context.Context, ownerID, cockID uint64, patch CockPatch) (*models.Cock, error) {
	var updated *models.Cock
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		cock, err := repo.FindForUpdate(ctx, ownerID, cockID)
		if err != nil {
			return errStorage(err, "load cock")
		}
		if cock == nil {
			return errNotFound()
		}

		fields, err := scalarUpdates(ctx, repo, cock, patch)
		if err != nil {
			return err
		}

		sireID, damID := cock.SireID, cock.DamID
		if patch.Sire.Set {
			sireID = nonZero(patch.Sire.ID)
		}
		if patch.Dam.Set {
			damID = nonZero(patch.Dam.ID)
		}
		if sireID != nil && damID != nil && *sireID == *damID {
			return errValidation("dam_id", "sire and dam must differ")
		}
		for _, parent := range []struct {
			next, current *uint64
			column        string
		}{
			{sireID, cock.SireID, "sire_id"},
			{damID, cock.DamID, "dam_id"},
		} {
			if sameRef(parent.next, parent.current) {
				continue
			}
			if parent.next != nil {
				if err := e.checkEdge(ctx, repo, ownerID, cock.ID, *parent.next); err != nil {
					return err
				}
			}
			fields[parent.column] = parent.next
		}

		if err := repo.Update(ctx, cock.ID, fields); err != nil {
			code := cock.Code
			if patch.Code != nil {
				code = NormalizeCode(*patch.Code)
			}
			return writeErr(err, code)
		}
		reloaded, err := repo.FindByID(ctx, ownerID, cock.ID)
		if err != nil {
			return errStorage(err, "reload cock")
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetAncestor points one parent edge of cock at ancestorID.
func (e *Engine) SetAncestor(ctx context.Context, ownerID, cockID uint64, origin enums.OriginKind, ancestorID uint64) (*models.Cock, error) {
	ref := ParentRef{Set: true, ID: &ancestorID}
	switch origin {
	case enums.OriginSynthesisedSire:
		return e.UpdateCock(ctx, ownerID, cockID, CockPatch{Sire: ref})
	case enums.OriginSynthesisedDam:
		return e.UpdateCock(ctx, ownerID, cockID, CockPatch{Dam: ref})
	default:
		return nil, errValidation("role", "role must be sire or dam")
	}
}

func (e *Engine) checkEdge(ctx context.Context, repo Repository, ownerID, cockID, ancestorID uint64) error {
	if ancestorID == cockID {
		return errCycle(cockID, ancestorID)
	}
	ancestor, err := repo.FindByID(ctx, ownerID, ancestorID)
	if err != nil {
		return errStorage(err, "load ancestor")
	}
	if ancestor == nil {
		return errAncestorForeign(ancestorID)
	}
	cyclic, err := wouldCycle(ctx, repo, ownerID, cockID, ancestorID)
	if err != nil {
		return errStorage(err, "check ancestry")
	}
	if cyclic {
		return errCycle(cockID, ancestorID)
	}
	return nil
}

func scalarUpdates(ctx context.Context, repo Repository, cock *models.Cock, patch CockPatch) (map[string]any, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errValidation("name", "name is required")
		}
		fields["name"] = name
	}
	if patch.Code != nil {
		code := NormalizeCode(*patch.Code)
		if code == "" {
			return nil, errValidation("code", "code is required")
		}
		if code != cock.Code {
			taken, err := repo.CodeExists(ctx, cock.OwnerID, code, cock.ID)
			if err != nil {
				return nil, errStorage(err, "check code")
			}
			if taken {
				return nil, errCodeTaken(code)
			}
			fields["code"] = code
		}
	}
	if patch.Status != nil {
		if !patch.Status.IsValid() {
			return nil, errValidation("status", "invalid status")
		}
		fields["status"] = *patch.Status
	}
	if patch.WeightGrams != nil {
		fields["weight_grams"] = *patch.WeightGrams
	}
	if patch.HeightCM != nil {
		fields["height_cm"] = *patch.HeightCM
	}
	if patch.Colour != nil {
		fields["colour"] = *patch.Colour
	}
	if patch.Breed != nil {
		fields["breed"] = *patch.Breed
	}
	if patch.BirthDate != nil {
		fields["birth_date"] = *patch.BirthDate
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}
	return fields, nil
}

// GetCock loads one cock of the owner.
func (e *Engine) GetCock(ctx context.Context, ownerID, cockID uint64) (*models.Cock, error) {
	cock, err := e.repo.FindByID(ctx, ownerID, cockID)
	if err != nil {
		return nil, errStorage(err, "load cock")
	}
	if cock == nil {
		return nil, errNotFound()
	}
	return cock, nil
}

func (e *Engine) ListCocks(ctx context.Context, ownerID uint64, filter ListFilter) ([]models.Cock, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, errValidation("status", "invalid status")
	}
	cocks, err := e.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, errStorage(err, "list cocks")
	}
	return cocks, nil
}

// DeleteCock removes a cock with its dependent records and unlinks its
// children. Provider media is deleted after commit on a best-effort basis.
func (e *Engine) DeleteCock(ctx context.Context, ownerID, cockID uint64) (*DeleteResult, error) {
	var removed *Cascade
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := e.repo.WithTx(tx).DeleteCascade(ctx, ownerID, cockID)
		if err != nil {
			return errStorage(err, "delete cock")
		}
		if res == nil {
			return errNotFound()
		}
		removed = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := removed.Result
	result.MediaErrors = e.discard(ctx, removed.StorageIDs)
	return &result, nil
}

func normalizeSpec(spec *AncestorSpec, field string) (*AncestorSpec, error) {
	if spec == nil {
		return nil, nil
	}
	if (spec.Fields == nil) == (spec.Ref == nil) {
		return nil, errValidation(field, "provide either fields or ref")
	}
	if spec.Ref != nil {
		if *spec.Ref == 0 {
			return nil, errValidation(field+".ref", "ref must be positive")
		}
		ref := *spec.Ref
		return &AncestorSpec{Ref: &ref}, nil
	}
	fields := spec.Fields.normalized()
	if err := fields.validate(field); err != nil {
		return nil, err
	}
	return &AncestorSpec{Fields: &fields}, nil
}

func writeErr(err error, code string) error {
	if db.IsUniqueViolation(err, "") {
		return errCodeTaken(code)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return errStorage(err, "write cock")
}

func idOf(c *models.Cock) *uint64 {
	if c == nil {
		return nil
	}
	id := c.ID
	return &id
}

func nonZero(id *uint64) *uint64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

func sameRef(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
