package payments

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gallotrack-backend/internal/billing"
	"github.com/angelmondragon/gallotrack-backend/internal/repo/repotest"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/db/models"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/mercadopago"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
)

var fixedNow = time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

type stubProcessor struct {
	payment *mercadopago.Payment
	err     error
	calls   int
}

func (s *stubProcessor) FetchPayment(_ context.Context, _ string) (*mercadopago.Payment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.payment
	return &cp, nil
}

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memoryGuard) CheckAndMarkKey(_ context.Context, scope, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = map[string]bool{}
	}
	key := scope + ":" + id
	if g.keys[key] {
		return true, nil
	}
	g.keys[key] = true
	return false, nil
}

func (g *memoryGuard) ReleaseKey(_ context.Context, scope, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, scope+":"+id)
	return nil
}

type fakeReceipts struct {
	uploaded []string
	deleted  []string
}

func (f *fakeReceipts) Upload(_ context.Context, _ []byte, name, folder string, _ enums.MediaKind) (*storage.UploadResult, error) {
	f.uploaded = append(f.uploaded, folder+"/"+name)
	return &storage.UploadResult{URL: "https://cdn/" + folder + "/" + name, StorageID: "rcpt-" + name}, nil
}

func (f *fakeReceipts) Delete(_ context.Context, storageID string) bool {
	f.deleted = append(f.deleted, storageID)
	return true
}

type fixture struct {
	conn      *gorm.DB
	billing   *billing.Service
	coord     *Coordinator
	processor *stubProcessor
	guard     *memoryGuard
	receipts  *fakeReceipts
}

type fixtureOpt func(*ServiceParams)

func withSecret(secret string) fixtureOpt {
	return func(p *ServiceParams) { p.WebhookSecret = secret }
}

func withoutGuard() fixtureOpt {
	return func(p *ServiceParams) { p.Idempotency = nil }
}

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	conn := repotest.Open(t)
	repotest.SeedPlans(t, conn)
	now := func() time.Time { return fixedNow }
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})

	bill, err := billing.NewService(billing.ServiceParams{
		Repo:              billing.NewRepository(conn),
		TransactionRunner: db.Wrap(conn),
		Now:               now,
	})
	require.NoError(t, err)

	f := &fixture{
		conn:      conn,
		billing:   bill,
		processor: &stubProcessor{},
		guard:     &memoryGuard{},
		receipts:  &fakeReceipts{},
	}
	params := ServiceParams{
		Repo:              NewRepository(conn),
		TransactionRunner: db.Wrap(conn),
		Billing:           bill,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Processor:         f.processor,
		Idempotency:       f.guard,
		Receipts:          f.receipts,
		ReceiptLimits:     storage.Limits{MaxImageBytes: 1 << 20, MaxVideoBytes: 1 << 20},
		Payments:          config.PaymentsConfig{QRMerchantName: "GalloTrack", QRAccount: "ACC-1", Currency: "USD"},
		Logger:            logg,
		Now:               now,
	}
	for _, opt := range opts {
		opt(&params)
	}
	f.coord, err = NewCoordinator(params)
	require.NoError(t, err)
	return f
}

func (f *fixture) seedPayment(t *testing.T, id, owner uint64, plan string, method enums.PaymentMethod) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.PendingPayment{
		ID:       id,
		OwnerID:  owner,
		PlanCode: plan,
		Amount:   decimal.RequireFromString("9.99"),
		Currency: "USD",
		Method:   method,
		State:    enums.PaymentStatePending,
	}).Error)
}

func (f *fixture) subscriptions(t *testing.T, owner uint64) []models.Subscription {
	t.Helper()
	var subs []models.Subscription
	require.NoError(t, f.conn.Where("owner_id = ?", owner).Order("id").Find(&subs).Error)
	return subs
}

func (f *fixture) payment(t *testing.T, id uint64) models.PendingPayment {
	t.Helper()
	var p models.PendingPayment
	require.NoError(t, f.conn.First(&p, id).Error)
	return p
}

func (f *fixture) outboxTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.EventType)
	}
	return out
}

func TestNewCoordinatorValidatesDependencies(t *testing.T) {
	_, err := NewCoordinator(ServiceParams{})
	require.Error(t, err)

	_, err = NewCoordinator(ServiceParams{Repo: NewRepository(nil), TransactionRunner: db.Wrap(nil)})
	require.Error(t, err)
}

func TestVerifyApprovalPromotesPlanAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.billing.EnsureGratis(ctx, nil, 7)
	require.NoError(t, err)
	f.seedPayment(t, 42, 7, "premium", enums.PaymentMethodQRTransfer)

	decision, err := f.coord.Verify(ctx, 1, 42, enums.PaymentDecisionApprove, "ok")
	require.NoError(t, err)
	require.NotNil(t, decision.Subscription)

	p := f.payment(t, 42)
	assert.Equal(t, enums.PaymentStateApproved, p.State)
	require.NotNil(t, p.VerifiedBy)
	assert.Equal(t, uint64(1), *p.VerifiedBy)
	require.NotNil(t, p.AdminNote)
	assert.Equal(t, "ok", *p.AdminNote)
	assert.NotNil(t, p.DecidedAt)

	subs := f.subscriptions(t, 7)
	require.Len(t, subs, 2)
	assert.Equal(t, "gratis", subs[0].PlanCode)
	assert.Equal(t, enums.SubscriptionStatusInactive, subs[0].Status)
	assert.Equal(t, "premium", subs[1].PlanCode)
	assert.Equal(t, enums.SubscriptionStatusActive, subs[1].Status)
	assert.Equal(t, 50, subs[1].Limits.MaxCocks)
	require.NotNil(t, subs[1].EndDate)
	assert.Equal(t, billing.Today(fixedNow).AddDate(0, 0, 30), subs[1].EndDate.UTC())
	require.NotNil(t, subs[1].PaymentID)
	assert.Equal(t, uint64(42), *subs[1].PaymentID)

	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventPaymentApproved, enums.EventSubscriptionPromoted}, f.outboxTypes(t))
}

func TestVerifyUnknownPlanAbortsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.billing.EnsureGratis(ctx, nil, 7)
	require.NoError(t, err)
	f.seedPayment(t, 5, 7, "legacy-gold", enums.PaymentMethodBankTransfer)

	_, err = f.coord.Verify(ctx, 1, 5, enums.PaymentDecisionApprove, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, billing.ReasonPlanUnknown))

	assert.Equal(t, enums.PaymentStatePending, f.payment(t, 5).State)
	subs := f.subscriptions(t, 7)
	require.Len(t, subs, 1)
	assert.Equal(t, enums.SubscriptionStatusActive, subs[0].Status)
	assert.Empty(t, f.outboxTypes(t))
}

func TestVerifyRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPayment(t, 9, 7, "basic", enums.PaymentMethodBankTransfer)

	_, err := f.coord.BeginReview(ctx, 2, 9)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStateVerifying, f.payment(t, 9).State)

	decision, err := f.coord.Verify(ctx, 2, 9, enums.PaymentDecisionReject, "blurry receipt")
	require.NoError(t, err)
	assert.Nil(t, decision.Subscription)
	assert.Equal(t, enums.PaymentStateRejected, f.payment(t, 9).State)
	assert.Empty(t, f.subscriptions(t, 7))
	assert.Equal(t, []enums.OutboxEventType{enums.EventPaymentRejected}, f.outboxTypes(t))
}

func TestVerifyErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Verify(ctx, 1, 404, enums.PaymentDecisionApprove, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.HasReason(err, ReasonPaymentMissing))

	f.seedPayment(t, 3, 7, "basic", enums.PaymentMethodBankTransfer)
	_, err = f.coord.Verify(ctx, 1, 3, enums.PaymentDecisionReject, "")
	require.NoError(t, err)

	_, err = f.coord.Verify(ctx, 1, 3, enums.PaymentDecisionApprove, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.HasReason(err, ReasonPaymentNotVerifiable))

	_, err = f.coord.BeginReview(ctx, 1, 3)
	assert.True(t, pkgerrors.HasReason(err, ReasonPaymentNotVerifiable))

	_, err = f.coord.Verify(ctx, 1, 3, enums.PaymentDecision("maybe"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBeginReviewTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPayment(t, 4, 7, "basic", enums.PaymentMethodBankTransfer)

	first, err := f.coord.BeginReview(ctx, 2, 4)
	require.NoError(t, err)
	second, err := f.coord.BeginReview(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, *first.VerifiedBy, *second.VerifiedBy)
}

func TestSubmitQRTransferWithReceipt(t *testing.T) {
	f := newFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	p, err := f.coord.Submit(context.Background(), 7, SubmitInput{
		PlanCode:    "Premium",
		Method:      enums.PaymentMethodQRTransfer,
		Reference:   " tx-991 ",
		Receipt:     png,
		ReceiptName: "voucher.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "premium", p.PlanCode)
	assert.Equal(t, "9.99", p.Amount.StringFixed(2))
	assert.Equal(t, enums.PaymentStatePending, p.State)
	require.NotNil(t, p.Reference)
	assert.Equal(t, "tx-991", *p.Reference)
	assert.Equal(t, "rcpt-voucher.png", p.ReceiptStorageID)
	assert.Equal(t, []string{"gallotrack/owners/7/receipts/voucher.png"}, f.receipts.uploaded)

	stored := f.payment(t, p.ID)
	assert.Contains(t, stored.QRPayload, "GALLOTRACK|GalloTrack|ACC-1|9.99|USD|GT-")
	assert.Equal(t, []enums.OutboxEventType{enums.EventPaymentSubmitted}, f.outboxTypes(t))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Submit(ctx, 7, SubmitInput{PlanCode: "gold", Method: enums.PaymentMethodQRTransfer})
	assert.True(t, pkgerrors.HasReason(err, billing.ReasonPlanUnknown))

	_, err = f.coord.Submit(ctx, 7, SubmitInput{PlanCode: "gratis", Method: enums.PaymentMethodQRTransfer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.coord.Submit(ctx, 7, SubmitInput{PlanCode: "basic", Method: "cash"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.coord.Submit(ctx, 7, SubmitInput{PlanCode: "basic", Method: enums.PaymentMethodBankTransfer, Receipt: []byte("not an image")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.receipts.uploaded)

	var count int64
	require.NoError(t, f.conn.Model(&models.PendingPayment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPayment(t, 1, 7, "basic", enums.PaymentMethodBankTransfer)
	f.seedPayment(t, 2, 8, "premium", enums.PaymentMethodBankTransfer)
	f.seedPayment(t, 3, 7, "premium", enums.PaymentMethodBankTransfer)
	_, err := f.coord.Verify(ctx, 1, 3, enums.PaymentDecisionReject, "")
	require.NoError(t, err)

	pending, err := f.coord.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(1), pending[0].ID)

	mine, err := f.coord.ListForOwner(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestSubmitDiscardsReceiptWhenWriteFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Migrator().DropTable(&models.PendingPayment{}))
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	_, err := f.coord.Submit(context.Background(), 7, SubmitInput{
		PlanCode: "basic",
		Method:   enums.PaymentMethodBankTransfer,
		Receipt:  png,
	})
	require.Error(t, err)
	assert.Equal(t, []string{"rcpt-receipt.jpg"}, f.receipts.deleted)
}
