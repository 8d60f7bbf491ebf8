package application

import (
	"context"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/booking"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/capacity"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/commission"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/webhook"
	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/google/uuid"
)

// fakeTxManager hands the same in-memory Repos to every callback. Rollback is
// not modelled; the tests assert on observable outcomes instead.
type fakeTxManager struct {
	repos *Repos
}

func (m *fakeTxManager) Do(ctx context.Context, fn func(r *Repos) error) error {
	return fn(m.repos)
}

func newFakeRepos() *Repos {
	return &Repos{
		Payments:    &fakePaymentRepo{byID: map[uuid.UUID]*payment.Payment{}},
		Refunds:     &fakeRefundRepo{byID: map[uuid.UUID]*refund.Refund{}},
		Webhooks:    &fakeWebhookRepo{byKey: map[string]*webhook.Event{}},
		Bookings:    &fakeBookingRepo{byID: map[uuid.UUID]*booking.Booking{}},
		Locks:       &fakeLockRepo{unconsumed: map[uuid.UUID]int64{}},
		Agreements:  &fakeAgreementRepo{},
		Commissions: &fakeCommissionRepo{seen: map[string]*commission.Record{}},
		Capacity:    &fakeCapacityRepo{byID: map[uuid.UUID]*capacity.Slot{}},
	}
}

type fakePaymentRepo struct {
	byID map[uuid.UUID]*payment.Payment
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("Payment", id.String())
	}
	return p, nil
}

func (r *fakePaymentRepo) FindByIdempotencyKey(_ context.Context, key string) (*payment.Payment, error) {
	for _, p := range r.byID {
		if p.IdempotencyKey() == key {
			return p, nil
		}
	}
	return nil, domainerr.NewNotFoundError("Payment", key)
}

func (r *fakePaymentRepo) FindActiveByBookingID(_ context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	for _, p := range r.byID {
		if p.BookingID() == bookingID && p.Status().IsActive() {
			return p, nil
		}
	}
	return nil, domainerr.NewNotFoundError("Payment", bookingID.String())
}

func (r *fakePaymentRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	var latest *payment.Payment
	for _, p := range r.byID {
		if p.BookingID() != bookingID {
			continue
		}
		if latest == nil || p.CreatedAt().After(latest.CreatedAt()) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domainerr.NewNotFoundError("Payment", bookingID.String())
	}
	return latest, nil
}

func (r *fakePaymentRepo) FindByProviderPaymentID(_ context.Context, providerName, providerPaymentID string) (*payment.Payment, error) {
	for _, p := range r.byID {
		if p.Provider() == providerName && p.ProviderPaymentID() == providerPaymentID {
			return p, nil
		}
	}
	return nil, domainerr.NewNotFoundError("Payment", providerPaymentID)
}

func (r *fakePaymentRepo) FindByProviderReference(_ context.Context, providerName, reference string) (*payment.Payment, error) {
	for _, p := range r.byID {
		if p.Provider() == providerName && p.ProviderReference() == reference {
			return p, nil
		}
	}
	return nil, domainerr.NewNotFoundError("Payment", reference)
}

func (r *fakePaymentRepo) FindStale(_ context.Context, lookback, staleAfter time.Duration, limit int) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.byID {
		if (p.Status() == payment.StatusPending || p.Status() == payment.StatusAuthorized) &&
			p.ProviderPaymentID() != "" &&
			time.Since(p.UpdatedAt()) >= staleAfter && time.Since(p.CreatedAt()) <= lookback {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) FindOrphans(_ context.Context, grace time.Duration, limit int) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.byID {
		if p.Status() == payment.StatusPending && p.ProviderPaymentID() == "" &&
			time.Since(p.CreatedAt()) >= grace {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ListAll(_ context.Context, page, limit int) ([]*payment.Payment, int64, error) {
	var out []*payment.Payment
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (r *fakePaymentRepo) GetRevenueStats(_ context.Context) (int64, map[string]int64, error) {
	var paid int64
	counts := map[string]int64{}
	for _, p := range r.byID {
		counts[string(p.Status())]++
		if p.Status() == payment.StatusPaid {
			paid += p.AmountCents()
		}
	}
	return paid, counts, nil
}

func (r *fakePaymentRepo) Save(_ context.Context, p *payment.Payment) error {
	for _, existing := range r.byID {
		if existing.IdempotencyKey() == p.IdempotencyKey() {
			return domainerr.NewConflictError("duplicate idempotency key")
		}
	}
	r.byID[p.ID()] = p
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	if _, ok := r.byID[p.ID()]; !ok {
		return domainerr.NewNotFoundError("Payment", p.ID().String())
	}
	r.byID[p.ID()] = p
	return nil
}

type fakeRefundRepo struct {
	byID map[uuid.UUID]*refund.Refund
}

func (r *fakeRefundRepo) FindByID(_ context.Context, id uuid.UUID) (*refund.Refund, error) {
	rf, ok := r.byID[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("Refund", id.String())
	}
	return rf, nil
}

func (r *fakeRefundRepo) FindByProviderRefundID(_ context.Context, providerRefundID string) (*refund.Refund, error) {
	for _, rf := range r.byID {
		if rf.ProviderRefundID() == providerRefundID {
			return rf, nil
		}
	}
	return nil, domainerr.NewNotFoundError("Refund", providerRefundID)
}

func (r *fakeRefundRepo) ListByPaymentID(_ context.Context, paymentID uuid.UUID) ([]*refund.Refund, error) {
	var out []*refund.Refund
	for _, rf := range r.byID {
		if rf.PaymentID() == paymentID {
			out = append(out, rf)
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) SumProcessedByPaymentID(_ context.Context, paymentID uuid.UUID) (int64, error) {
	var sum int64
	for _, rf := range r.byID {
		if rf.PaymentID() == paymentID && rf.Status() == refund.StatusProcessed {
			sum += rf.AmountCents()
		}
	}
	return sum, nil
}

func (r *fakeRefundRepo) Save(_ context.Context, rf *refund.Refund) error {
	r.byID[rf.ID()] = rf
	return nil
}

func (r *fakeRefundRepo) Update(_ context.Context, rf *refund.Refund) error {
	r.byID[rf.ID()] = rf
	return nil
}

type fakeWebhookRepo struct {
	byKey map[string]*webhook.Event
}

func webhookKey(provider, eventID string) string { return provider + "|" + eventID }

func (r *fakeWebhookRepo) FindByProviderEventID(_ context.Context, provider, providerEventID string) (*webhook.Event, error) {
	e, ok := r.byKey[webhookKey(provider, providerEventID)]
	if !ok {
		return nil, domainerr.NewNotFoundError("WebhookEvent", providerEventID)
	}
	return e, nil
}

func (r *fakeWebhookRepo) Save(_ context.Context, e *webhook.Event) error {
	key := webhookKey(e.Provider(), e.ProviderEventID())
	if _, exists := r.byKey[key]; exists {
		return domainerr.NewConflictError("duplicate webhook event")
	}
	r.byKey[key] = e
	return nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, e *webhook.Event) error {
	r.byKey[webhookKey(e.Provider(), e.ProviderEventID())] = e
	return nil
}

type fakeBookingRepo struct {
	byID map[uuid.UUID]*booking.Booking
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := r.byID[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("Booking", id.String())
	}
	return b, nil
}

func (r *fakeBookingRepo) Update(_ context.Context, b *booking.Booking) error {
	r.byID[b.ID()] = b
	return nil
}

type fakeLockRepo struct {
	unconsumed map[uuid.UUID]int64
	consumed   map[uuid.UUID]int64
}

func (r *fakeLockRepo) ConsumeByBookingID(_ context.Context, bookingID uuid.UUID) (int64, error) {
	n := r.unconsumed[bookingID]
	delete(r.unconsumed, bookingID)
	if r.consumed == nil {
		r.consumed = map[uuid.UUID]int64{}
	}
	r.consumed[bookingID] += n
	return n, nil
}

type fakeAgreementRepo struct {
	agreements []*booking.AgentAgreement
}

func (r *fakeAgreementRepo) FindActive(_ context.Context, agentID, resortID uuid.UUID) (*booking.AgentAgreement, error) {
	for _, a := range r.agreements {
		if a.AgentID == agentID && a.ResortID == resortID && a.Active {
			return a, nil
		}
	}
	return nil, domainerr.NewNotFoundError("AgentAgreement", agentID.String())
}

type fakeCommissionRepo struct {
	seen map[string]*commission.Record
}

func commissionKey(bookingID uuid.UUID, kind commission.Kind) string {
	return bookingID.String() + "|" + string(kind)
}

func (r *fakeCommissionRepo) SaveIdempotent(_ context.Context, rec *commission.Record) (bool, error) {
	key := commissionKey(rec.BookingID, rec.Kind)
	if _, exists := r.seen[key]; exists {
		return false, nil
	}
	r.seen[key] = rec
	return true, nil
}

func (r *fakeCommissionRepo) CountByBookingID(_ context.Context, bookingID uuid.UUID) (int64, error) {
	var n int64
	for _, rec := range r.seen {
		if rec.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

type fakeCapacityRepo struct {
	byID map[uuid.UUID]*capacity.Slot
}

func (r *fakeCapacityRepo) FindByID(_ context.Context, id uuid.UUID) (*capacity.Slot, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("AvailabilitySlot", id.String())
	}
	return s, nil
}

func (r *fakeCapacityRepo) Save(_ context.Context, s *capacity.Slot) error {
	r.byID[s.ID()] = s
	return nil
}

func (r *fakeCapacityRepo) Update(_ context.Context, s *capacity.Slot) error {
	r.byID[s.ID()] = s
	return nil
}

// fakeProvider is a programmable gateway adapter.
type fakeProvider struct {
	name     string
	currency string

	createFn  func(intent provider.Intent) (*provider.Payment, error)
	statusFn  func(providerPaymentID string) (*provider.Payment, error)
	refundFn  func(req provider.RefundRequest) (*provider.Refund, error)
	metaFn    func(payload []byte) (provider.EventMeta, error)
	webhookFn func(payload []byte, headers map[string]string) (*provider.WebhookEvent, error)

	createCalls int
	cancelCalls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SettlementCurrency() string { return f.currency }

func (f *fakeProvider) CreatePayment(_ context.Context, intent provider.Intent) (*provider.Payment, error) {
	f.createCalls++
	return f.createFn(intent)
}

func (f *fakeProvider) GetPaymentStatus(_ context.Context, providerPaymentID string) (*provider.Payment, error) {
	return f.statusFn(providerPaymentID)
}

func (f *fakeProvider) CreateRefund(_ context.Context, req provider.RefundRequest) (*provider.Refund, error) {
	return f.refundFn(req)
}

func (f *fakeProvider) GetRefundStatus(_ context.Context, providerRefundID string) (*provider.Refund, error) {
	return &provider.Refund{ProviderRefundID: providerRefundID, Status: refund.StatusPending}, nil
}

func (f *fakeProvider) ParseEventMeta(payload []byte) (provider.EventMeta, error) {
	return f.metaFn(payload)
}

func (f *fakeProvider) ValidateWebhook(_ context.Context, payload []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	return f.webhookFn(payload, headers)
}

func (f *fakeProvider) CancelPayment(_ context.Context, providerPaymentID string) error {
	f.cancelCalls++
	return nil
}

type fakeNotifier struct {
	confirmations []notify.PaymentConfirmedEvent
	refunds       []notify.RefundProcessedEvent
}

func (n *fakeNotifier) SendPaymentConfirmation(_ context.Context, evt notify.PaymentConfirmedEvent) error {
	n.confirmations = append(n.confirmations, evt)
	return nil
}

func (n *fakeNotifier) SendRefundProcessed(_ context.Context, evt notify.RefundProcessedEvent) error {
	n.refunds = append(n.refunds, evt)
	return nil
}

type fakeCouponService struct {
	marked []uuid.UUID
}

func (c *fakeCouponService) MarkCouponsUsedForBooking(_ context.Context, bookingID uuid.UUID) error {
	c.marked = append(c.marked, bookingID)
	return nil
}
