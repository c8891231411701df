package pedigree

import (
	"context"
	"fmt"
	"sort"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

// MaxTreeDepth is the deepest ancestor walk a caller may request.
const MaxTreeDepth = 20

// wouldCycle reports whether making ancestorID a parent of cockID closes a
// loop. The upward walk from ancestorID stops after cycleCheckDepth levels;
// anything deeper is accepted and left to the tree builder's path guard.
func wouldCycle(ctx context.Context, repo Repository, ownerID, cockID, ancestorID uint64) (bool, error) {
	if cockID == ancestorID {
		return true, nil
	}
	seen := map[uint64]struct{}{ancestorID: {}}
	frontier := []uint64{ancestorID}
	for depth := 0; depth < cycleCheckDepth && len(frontier) > 0; depth++ {
		rows, err := repo.FindByIDs(ctx, ownerID, frontier)
		if err != nil {
			return false, err
		}
		frontier = frontier[:0]
		for i := range rows {
			for _, parent := range []*uint64{rows[i].SireID, rows[i].DamID} {
				if parent == nil {
					continue
				}
				if *parent == cockID {
					return true, nil
				}
				if _, ok := seen[*parent]; ok {
					continue
				}
				seen[*parent] = struct{}{}
				frontier = append(frontier, *parent)
			}
		}
	}
	return false, nil
}

// loadAncestors fetches rootID and up to depth generations above it, one
// query per generation.
func loadAncestors(ctx context.Context, repo Repository, ownerID, rootID uint64, depth int) (map[uint64]*models.Cock, error) {
	nodes := make(map[uint64]*models.Cock)
	frontier := []uint64{rootID}
	for level := 0; level <= depth && len(frontier) > 0; level++ {
		rows, err := repo.FindByIDs(ctx, ownerID, frontier)
		if err != nil {
			return nil, err
		}
		frontier = nil
		for i := range rows {
			cock := rows[i]
			nodes[cock.ID] = &cock
			if level == depth {
				continue
			}
			for _, parent := range []*uint64{cock.SireID, cock.DamID} {
				if parent == nil {
					continue
				}
				if _, ok := nodes[*parent]; !ok {
					frontier = append(frontier, *parent)
				}
			}
		}
	}
	return nodes, nil
}

func resolveDepth(depth int) (int, error) {
	if depth < 0 {
		return DefaultTreeDepth, nil
	}
	if depth > MaxTreeDepth {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("depth must be at most %d", MaxTreeDepth)).
			WithDetails(map[string]any{"field": "depth", "max": MaxTreeDepth})
	}
	return depth, nil
}

// BuildTree returns the ancestor tree of cockID. A negative depth selects
// DefaultTreeDepth; depth 0 yields the root alone. Depths above MaxTreeDepth
// are rejected.
func (e *Engine) BuildTree(ctx context.Context, ownerID, cockID uint64, maxDepth int) (*Tree, error) {
	depth, err := resolveDepth(maxDepth)
	if err != nil {
		return nil, err
	}
	nodes, err := loadAncestors(ctx, e.repo, ownerID, cockID, depth)
	if err != nil {
		return nil, errStorage(err, "load ancestors")
	}
	if _, ok := nodes[cockID]; !ok {
		return nil, errNotFound()
	}
	return expand(nodes, cockID, depth, map[uint64]bool{}), nil
}

func expand(nodes map[uint64]*models.Cock, id uint64, remaining int, onPath map[uint64]bool) *Tree {
	cock, ok := nodes[id]
	if !ok || onPath[id] {
		return nil
	}
	node := &Tree{Cock: summarize(cock)}
	if remaining == 0 {
		return node
	}
	onPath[id] = true
	if cock.SireID != nil {
		node.Sire = expand(nodes, *cock.SireID, remaining-1, onPath)
	}
	if cock.DamID != nil {
		node.Dam = expand(nodes, *cock.DamID, remaining-1, onPath)
	}
	delete(onPath, id)
	return node
}

// SearchByCohort returns every cock created in the family keyed by cohortKey.
func (e *Engine) SearchByCohort(ctx context.Context, ownerID, cohortKey uint64) ([]models.Cock, error) {
	cocks, err := e.repo.ListByCohort(ctx, ownerID, cohortKey)
	if err != nil {
		return nil, errStorage(err, "list cohort")
	}
	return cocks, nil
}

// SearchDescendants returns the direct children of ancestorID.
func (e *Engine) SearchDescendants(ctx context.Context, ownerID, ancestorID uint64) ([]models.Cock, error) {
	if _, err := e.GetCock(ctx, ownerID, ancestorID); err != nil {
		return nil, err
	}
	cocks, err := e.repo.ListChildren(ctx, ownerID, ancestorID)
	if err != nil {
		return nil, errStorage(err, "list children")
	}
	return cocks, nil
}

// SearchAncestors returns the sorted ids of every ancestor of cockID within
// maxDepth generations.
func (e *Engine) SearchAncestors(ctx context.Context, ownerID, cockID uint64, maxDepth int) ([]uint64, error) {
	depth, err := resolveDepth(maxDepth)
	if err != nil {
		return nil, err
	}
	nodes, err := loadAncestors(ctx, e.repo, ownerID, cockID, depth)
	if err != nil {
		return nil, errStorage(err, "load ancestors")
	}
	if _, ok := nodes[cockID]; !ok {
		return nil, errNotFound()
	}
	ids := make([]uint64, 0, len(nodes)-1)
	for id := range nodes {
		if id != cockID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
