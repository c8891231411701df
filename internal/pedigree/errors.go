package pedigree

import (
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

// Concept tags carried on pedigree errors.
const (
	ReasonCodeTaken           = "CODE_TAKEN"
	ReasonAncestorForeign     = "ANCESTOR_FOREIGN"
	ReasonCycleDetected       = "CYCLE_DETECTED"
	ReasonAlreadyHasAncestors = "ALREADY_HAS_ANCESTORS"
	ReasonStorageFailed       = "STORAGE_FAILED"
	ReasonIntegrity           = "INTEGRITY"
)

func errCodeTaken(code string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "code already in use").
		WithReason(ReasonCodeTaken).
		WithDetails(map[string]any{"code": code})
}

func errAncestorForeign(id uint64) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "ancestor not found for owner").
		WithReason(ReasonAncestorForeign).
		WithDetails(map[string]any{"ancestor_id": id})
}

func errCycle(target, ancestor uint64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "ancestry edge would create a cycle").
		WithReason(ReasonCycleDetected).
		WithDetails(map[string]any{"cock_id": target, "ancestor_id": ancestor})
}

func errAlreadyHasAncestors(id uint64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cock already has ancestors").
		WithReason(ReasonAlreadyHasAncestors).
		WithDetails(map[string]any{"cock_id": id})
}

func errStorage(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg).WithReason(ReasonStorageFailed)
}

func errNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cock not found")
}

func errValidation(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"field": field})
}
