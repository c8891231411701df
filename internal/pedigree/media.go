package pedigree

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

// setPrincipal makes m the principal image. A different previous principal
// leaves the gallery and its storage id is returned for deletion.
func setPrincipal(c *models.Cock, m MediaObject, now time.Time) []string {
	var orphans []string
	prev := c.PrincipalImageStorageID
	if prev != "" && prev != m.StorageID {
		orphans = append(orphans, prev)
		if idx := indexOf(c.Auxiliary, prev); idx >= 0 {
			c.Auxiliary = append(c.Auxiliary[:idx:idx], c.Auxiliary[idx+1:]...)
		}
	}

	found := false
	for i := range c.Auxiliary {
		entry := &c.Auxiliary[i]
		entry.IsPrincipal = m.StorageID != "" && entry.StorageID == m.StorageID
		if entry.IsPrincipal {
			entry.URL = m.URL
			found = true
		}
	}
	if !found {
		c.Auxiliary = append(c.Auxiliary, models.AuxiliaryImage{
			URL:         m.URL,
			StorageID:   m.StorageID,
			Order:       nextOrder(c.Auxiliary),
			IsPrincipal: true,
			UploadedAt:  now,
		})
	}
	c.PrincipalImageURL = m.URL
	c.PrincipalImageStorageID = m.StorageID
	return orphans
}

// appendAuxiliary adds gallery entries from orderStart on. The principal is
// only touched when the cock has none, in which case the first new entry
// takes that role.
func appendAuxiliary(c *models.Cock, media []MediaObject, orderStart int, now time.Time) {
	if len(media) == 0 {
		return
	}
	if orderStart <= 0 {
		orderStart = nextOrder(c.Auxiliary)
	}
	promote := c.PrincipalImageURL == ""
	if promote {
		for i := range c.Auxiliary {
			c.Auxiliary[i].IsPrincipal = false
		}
	}
	for i, m := range media {
		c.Auxiliary = append(c.Auxiliary, models.AuxiliaryImage{
			URL:         m.URL,
			StorageID:   m.StorageID,
			Order:       orderStart + i,
			IsPrincipal: promote && i == 0,
			UploadedAt:  now,
		})
	}
	if promote {
		c.PrincipalImageURL = media[0].URL
		c.PrincipalImageStorageID = media[0].StorageID
	}
}

// detachOne drops the gallery entry holding storageID and clears the
// principal when it pointed at the same object.
func detachOne(c *models.Cock, storageID string) error {
	idx := indexOf(c.Auxiliary, storageID)
	isPrincipal := storageID != "" && c.PrincipalImageStorageID == storageID
	if idx < 0 && !isPrincipal {
		return pkgerrors.New(pkgerrors.CodeNotFound, "media not attached to cock").
			WithDetails(map[string]any{"storage_id": storageID})
	}
	if idx >= 0 {
		c.Auxiliary = append(c.Auxiliary[:idx:idx], c.Auxiliary[idx+1:]...)
	}
	if isPrincipal {
		c.PrincipalImageURL = ""
		c.PrincipalImageStorageID = ""
	}
	return nil
}

func indexOf(gallery []models.AuxiliaryImage, storageID string) int {
	if storageID == "" {
		return -1
	}
	for i, entry := range gallery {
		if entry.StorageID == storageID {
			return i
		}
	}
	return -1
}

func nextOrder(gallery []models.AuxiliaryImage) int {
	next := 1
	for _, entry := range gallery {
		if entry.Order >= next {
			next = entry.Order + 1
		}
	}
	return next
}

// stagedMedia holds objects uploaded ahead of a write transaction.
type stagedMedia struct {
	principal *MediaObject
	auxiliary []MediaObject
}

func (s *stagedMedia) applyTo(c *models.Cock, now time.Time) {
	if s == nil {
		return
	}
	if s.principal != nil {
		setPrincipal(c, *s.principal, now)
	}
	appendAuxiliary(c, s.auxiliary, 0, now)
}

func (s *stagedMedia) storageIDs() []string {
	if s == nil {
		return nil
	}
	var ids []string
	if s.principal != nil {
		ids = append(ids, s.principal.StorageID)
	}
	for _, m := range s.auxiliary {
		ids = append(ids, m.StorageID)
	}
	return ids
}

func (e *Engine) folder(ownerID uint64) string {
	return e.root + "/owners/" + strconv.FormatUint(ownerID, 10) + "/cocks"
}

func (e *Engine) stageUploads(ctx context.Context, ownerID uint64, principal *Upload, auxiliary []Upload) (*stagedMedia, error) {
	if principal == nil && len(auxiliary) == 0 {
		return &stagedMedia{}, nil
	}
	if e.media == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "media storage is not configured").
			WithReason(storage.ReasonProviderFailed)
	}
	uploads := make([]Upload, 0, len(auxiliary)+1)
	if principal != nil {
		uploads = append(uploads, *principal)
	}
	uploads = append(uploads, auxiliary...)
	for i, up := range uploads {
		if _, _, err := storage.Sniff(up.Payload, enums.MediaKindImage, e.limits); err != nil {
			if typed := pkgerrors.As(err); typed != nil {
				return nil, typed.WithDetails(map[string]any{"index": i})
			}
			return nil, err
		}
	}

	stored, err := e.uploadAll(ctx, ownerID, uploads)
	if err != nil {
		return nil, err
	}
	staged := &stagedMedia{}
	if principal != nil {
		staged.principal = &stored[0]
		stored = stored[1:]
	}
	staged.auxiliary = stored
	return staged, nil
}

// uploadAll pushes payloads concurrently and keeps their input order. A
// failure removes whatever already landed at the provider.
func (e *Engine) uploadAll(ctx context.Context, ownerID uint64, uploads []Upload) ([]MediaObject, error) {
	out := make([]MediaObject, len(uploads))
	folder := e.folder(ownerID)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, up := range uploads {
		g.Go(func() error {
			name := strings.TrimSpace(up.Name)
			if name == "" {
				name = fmt.Sprintf("cock_%d.jpg", i+1)
			}
			res, err := e.media.Upload(gctx, up.Payload, name, folder, enums.MediaKindImage)
			if err != nil {
				return err
			}
			out[i] = MediaObject{URL: res.URL, StorageID: res.StorageID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var landed []string
		for _, m := range out {
			if m.StorageID != "" {
				landed = append(landed, m.StorageID)
			}
		}
		e.discard(ctx, landed)
		return nil, err
	}
	return out, nil
}

// discard deletes provider objects best-effort and returns how many failed.
func (e *Engine) discard(ctx context.Context, storageIDs []string) int {
	if e.media == nil || len(storageIDs) == 0 {
		return 0
	}
	var errs error
	failed := 0
	for _, id := range storageIDs {
		if id == "" {
			continue
		}
		if !e.media.Delete(ctx, id) {
			failed++
			errs = multierr.Append(errs, fmt.Errorf("delete %s", id))
		}
	}
	if errs != nil && e.logg != nil {
		e.logg.Error(e.logg.WithField(ctx, "orphans", failed), "provider media left behind", errs)
	}
	return failed
}

// mutateMedia applies fn to a locked cock and persists the gallery. Storage
// ids returned by fn are deleted after commit.
func (e *Engine) mutateMedia(ctx context.Context, ownerID, cockID uint64, fn func(c *models.Cock) ([]string, error)) (*models.Cock, error) {
	var (
		cock    *models.Cock
		orphans []string
	)
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		found, err := repo.FindForUpdate(ctx, ownerID, cockID)
		if err != nil {
			return errStorage(err, "load cock")
		}
		if found == nil {
			return errNotFound()
		}
		ids, err := fn(found)
		if err != nil {
			return err
		}
		if err := repo.SaveMedia(ctx, found); err != nil {
			return errStorage(err, "save media")
		}
		cock, orphans = found, ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.discard(ctx, orphans)
	return cock, nil
}

// AttachPrincipal sets an already stored object as the cock's principal image.
func (e *Engine) AttachPrincipal(ctx context.Context, ownerID, cockID uint64, m MediaObject) (*models.Cock, error) {
	if strings.TrimSpace(m.URL) == "" {
		return nil, errValidation("url", "url is required")
	}
	now := e.now().UTC()
	return e.mutateMedia(ctx, ownerID, cockID, func(c *models.Cock) ([]string, error) {
		return setPrincipal(c, m, now), nil
	})
}

// AttachPrincipalUpload uploads a payload and makes it the principal image.
func (e *Engine) AttachPrincipalUpload(ctx context.Context, ownerID, cockID uint64, up Upload) (*models.Cock, error) {
	if _, err := e.GetCock(ctx, ownerID, cockID); err != nil {
		return nil, err
	}
	staged, err := e.stageUploads(ctx, ownerID, &up, nil)
	if err != nil {
		return nil, err
	}
	cock, err := e.AttachPrincipal(ctx, ownerID, cockID, *staged.principal)
	if err != nil {
		e.discard(ctx, staged.storageIDs())
		return nil, err
	}
	return cock, nil
}

// AppendAuxiliary adds stored objects to the gallery starting at orderStart,
// or after the last entry when orderStart is zero.
func (e *Engine) AppendAuxiliary(ctx context.Context, ownerID, cockID uint64, media []MediaObject, orderStart int) (*models.Cock, error) {
	if len(media) == 0 {
		return nil, errValidation("media", "at least one media object is required")
	}
	now := e.now().UTC()
	return e.mutateMedia(ctx, ownerID, cockID, func(c *models.Cock) ([]string, error) {
		appendAuxiliary(c, media, orderStart, now)
		return nil, nil
	})
}

// AppendAuxiliaryUploads uploads payloads concurrently and appends them in
// input order.
func (e *Engine) AppendAuxiliaryUploads(ctx context.Context, ownerID, cockID uint64, uploads []Upload) (*models.Cock, error) {
	if len(uploads) == 0 {
		return nil, errValidation("files", "at least one file is required")
	}
	if _, err := e.GetCock(ctx, ownerID, cockID); err != nil {
		return nil, err
	}
	staged, err := e.stageUploads(ctx, ownerID, nil, uploads)
	if err != nil {
		return nil, err
	}
	cock, err := e.AppendAuxiliary(ctx, ownerID, cockID, staged.auxiliary, 0)
	if err != nil {
		e.discard(ctx, staged.storageIDs())
		return nil, err
	}
	return cock, nil
}

// DetachOne removes one object from the cock. The row change is kept even
// when the provider delete fails.
func (e *Engine) DetachOne(ctx context.Context, ownerID, cockID uint64, storageID string) (*models.Cock, error) {
	storageID = strings.TrimSpace(storageID)
	if storageID == "" {
		return nil, errValidation("storage_id", "storage_id is required")
	}
	return e.mutateMedia(ctx, ownerID, cockID, func(c *models.Cock) ([]string, error) {
		if err := detachOne(c, storageID); err != nil {
			return nil, err
		}
		return []string{storageID}, nil
	})
}
