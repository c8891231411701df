package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/mercadopago"
	"github.com/angelmondragon/gallotrack-backend/pkg/security"
)

const testSecret = "whsec_test"

func approvedRemote() *mercadopago.Payment {
	return &mercadopago.Payment{
		ID:       "8812",
		Status:   mercadopago.StatusApproved,
		OwnerID:  7,
		PlanCode: "premium",
		Amount:   decimal.RequireFromString("9.99"),
		Currency: "USD",
	}
}

func signedInput(resourceID, requestID string) WebhookInput {
	ts := "1767225600"
	hash := security.SignWebhookManifest(testSecret, security.WebhookManifest(resourceID, requestID, ts))
	return WebhookInput{
		Signature: "ts=" + ts + ",v1=" + hash,
		RequestID: requestID,
		Body:      []byte(`{"type":"payment","data":{"id":"` + resourceID + `"}}`),
	}
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	for name, opts := range map[string][]fixtureOpt{
		"with guard":    {withSecret(testSecret)},
		"database only": {withSecret(testSecret), withoutGuard()},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()
			_, err := f.billing.EnsureGratis(ctx, nil, 7)
			require.NoError(t, err)
			f.processor.payment = approvedRemote()

			first, err := f.coord.IngestWebhook(ctx, signedInput("8812", "req-1"))
			require.NoError(t, err)
			assert.Equal(t, OutcomePromoted, first.Outcome)
			require.NotZero(t, first.PaymentID)

			before := f.payment(t, first.PaymentID)
			assert.Equal(t, enums.PaymentStateApproved, before.State)
			require.NotNil(t, before.ExternalID)
			assert.Equal(t, "8812", *before.ExternalID)
			assert.Equal(t, 1, before.Attempts)

			second, err := f.coord.IngestWebhook(ctx, signedInput("8812", "req-1"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, second.Outcome)

			after := f.payment(t, first.PaymentID)
			assert.Equal(t, before.Attempts, after.Attempts)
			assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

			subs := f.subscriptions(t, 7)
			require.Len(t, subs, 2)
			assert.Equal(t, "premium", subs[1].PlanCode)
			assert.Equal(t, enums.SubscriptionStatusActive, subs[1].Status)

			var payments int64
			require.NoError(t, f.conn.Model(&models.PendingPayment{}).Count(&payments).Error)
			assert.Equal(t, int64(1), payments)
		})
	}
}

func TestWebhookLinksOpenCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted, err := f.coord.Submit(ctx, 7, SubmitInput{PlanCode: "premium", Method: enums.PaymentMethodMercadoPago})
	require.NoError(t, err)
	require.NotNil(t, submitted.Reference)
	assert.Equal(t, "owner:7;plan:premium", *submitted.Reference)

	f.processor.payment = approvedRemote()
	res, err := f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, res.Outcome)
	assert.Equal(t, submitted.ID, res.PaymentID)
	assert.Equal(t, enums.PaymentStateApproved, f.payment(t, submitted.ID).State)
}

func TestWebhookPendingThenApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remote := approvedRemote()
	remote.Status = mercadopago.StatusPending
	f.processor.payment = remote
	res, err := f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)
	stored := f.payment(t, res.PaymentID)
	assert.Equal(t, enums.PaymentStatePending, stored.State)
	require.NotNil(t, stored.ProcessorStatus)
	assert.Equal(t, "pending", *stored.ProcessorStatus)
	assert.Empty(t, f.subscriptions(t, 7))

	f.processor.payment = approvedRemote()
	res, err = f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, res.Outcome)
	assert.Equal(t, stored.ID, res.PaymentID)
	assert.Equal(t, 2, f.payment(t, res.PaymentID).Attempts)
	assert.Len(t, f.subscriptions(t, 7), 1)
}

func TestWebhookRejectedStatus(t *testing.T) {
	f := newFixture(t)
	remote := approvedRemote()
	remote.Status = mercadopago.StatusRejected
	f.processor.payment = remote

	res, err := f.coord.IngestWebhook(context.Background(), WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, enums.PaymentStateRejected, f.payment(t, res.PaymentID).State)
	assert.Empty(t, f.subscriptions(t, 7))
}

func TestWebhookSignatureInvalid(t *testing.T) {
	f := newFixture(t, withSecret(testSecret))
	f.processor.payment = approvedRemote()

	in := signedInput("8812", "req-1")
	in.RequestID = "req-2"
	_, err := f.coord.IngestWebhook(context.Background(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.True(t, pkgerrors.HasReason(err, ReasonSignatureInvalid))

	_, err = f.coord.IngestWebhook(context.Background(), WebhookInput{ResourceID: "8812", Signature: "garbage"})
	assert.True(t, pkgerrors.HasReason(err, ReasonSignatureInvalid))

	assert.Zero(t, f.processor.calls)
	assert.Empty(t, f.subscriptions(t, 7))
}

func TestWebhookIgnoredCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.IngestWebhook(ctx, WebhookInput{Body: []byte(`{"type":"plan","data":{"id":"1"}}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	res, err = f.coord.IngestWebhook(ctx, WebhookInput{Body: []byte(`not json`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	remote := approvedRemote()
	remote.PlanCode = "legacy-gold"
	f.processor.payment = remote
	res, err = f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	remote = approvedRemote()
	remote.ID = "8813"
	remote.OwnerID = 0
	f.processor.payment = remote
	res, err = f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8813"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	assert.Empty(t, f.subscriptions(t, 7))
}

func TestWebhookProcessorFailureIsRetriable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.err = errors.New("processor down")

	_, err := f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.HasReason(err, ReasonProcessorFailed))

	f.processor.err = nil
	f.processor.payment = approvedRemote()
	res, err := f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, res.Outcome)
}

func TestWebhookReleasesGuardOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.payment = approvedRemote()
	require.NoError(t, f.conn.Exec("DROP TABLE subscriptions").Error)

	_, err := f.coord.IngestWebhook(ctx, WebhookInput{ResourceID: "8812"})
	require.Error(t, err)
	assert.Empty(t, f.guard.keys)
}

func TestParseWebhookBody(t *testing.T) {
	id, kind := parseWebhookBody([]byte(`{"type":"payment","data":{"id":12345}}`))
	assert.Equal(t, "12345", id)
	assert.Equal(t, "payment", kind)

	id, _ = parseWebhookBody([]byte(`{"data":{"id":null}}`))
	assert.Empty(t, id)
}
