package payments

import (
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

const (
	ReasonPaymentMissing       = "PAYMENT_MISSING"
	ReasonPaymentNotVerifiable = "PAYMENT_NOT_VERIFIABLE"
	ReasonSignatureInvalid     = "SIGNATURE_INVALID"
	ReasonProcessorFailed      = "PROCESSOR_FAILED"
)

func errPaymentMissing(id uint64) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
		WithReason(ReasonPaymentMissing).
		WithDetails(map[string]any{"payment_id": id})
}

func errNotVerifiable(id uint64, state enums.PaymentState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not awaiting verification").
		WithReason(ReasonPaymentNotVerifiable).
		WithDetails(map[string]any{"payment_id": id, "state": state})
}

func errSignatureInvalid() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature").
		WithReason(ReasonSignatureInvalid)
}
