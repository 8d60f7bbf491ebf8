package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/booking"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapturerProvider upgrades fakeProvider to a two-phase gateway.
type fakeCapturerProvider struct {
	*fakeProvider
}

func (f *fakeCapturerProvider) CapturePayment(_ context.Context, providerPaymentID string) (string, error) {
	return "CAP-" + providerPaymentID, nil
}

// seedPaidPayment stores a paid payment directly, bypassing the gateway.
func seedPaidPayment(s *testStack, b *booking.Booking, providerName, idempotencyKey string, amountCents int64, currency string, paidAt time.Time, metadata map[string]any) *payment.Payment {
	id := uuid.New()
	p := payment.Reconstitute(
		id, b.ID(),
		providerName, "trx-"+idempotencyKey, id.String(),
		amountCents, currency,
		payment.StatusPaid,
		"CARD", idempotencyKey, "",
		paidAt.Add(15*time.Minute),
		nil, &paidAt, nil, nil,
		"", metadata, 1,
		paidAt, paidAt,
	)
	s.repos.Payments.(*fakePaymentRepo).byID[p.ID()] = p
	return p
}

func TestCreateRefund_FullRefund(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-1", 15_000_000, "COP", time.Now().Add(-time.Hour), nil)

	var gotReq provider.RefundRequest
	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		gotReq = req
		return &provider.Refund{ProviderRefundID: "rfd-1", Status: refund.StatusProcessed}, nil
	}

	dto, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 15_000_000,
		Reason:      "trip cancelled",
	})
	require.NoError(t, err)

	assert.Equal(t, string(refund.StatusProcessed), dto.Status)
	assert.Equal(t, "rfd-1", dto.ProviderRefundID)
	assert.NotNil(t, dto.ProcessedAt)
	assert.Equal(t, p.ProviderPaymentID(), gotReq.ProviderPaymentID)
	assert.Equal(t, int64(15_000_000), gotReq.AmountCents)

	require.Len(t, s.notifier.refunds, 1)
	assert.Equal(t, dto.ID, s.notifier.refunds[0].RefundID)
}

func TestCreateRefund_HidesForeignPayment(t *testing.T) {
	s := newTestStack(t)
	b := seedBooking(s, uuid.New(), nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-2", 15_000_000, "COP", time.Now(), nil)

	stranger := uuid.New()
	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &stranger, true, CreateRefundRequest{
		AmountCents: 1000,
		Reason:      "trip cancelled",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsNotFound(err))
}

func TestCreateRefund_OnlyPaidPayments(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	dto := createPayment(t, s, ownerID, b, "wompi", "rk-3")

	_, err := s.refunds.CreateRefund(context.Background(), dto.ID, &ownerID, true, CreateRefundRequest{
		AmountCents: 1000,
		Reason:      "changed my mind",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsValidation(err))
}

func TestCreateRefund_WindowExpired(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-4", 15_000_000, "COP", time.Now().Add(-50*time.Hour), nil)

	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 1000,
		Reason:      "too late",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsValidation(err))
	assert.Contains(t, err.Error(), "refund window of 48h expired")
}

func TestCreateRefund_WaivedWindow(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-4b", 15_000_000, "COP", time.Now().Add(-50*time.Hour), nil)

	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		return &provider.Refund{ProviderRefundID: "rfd-4b", Status: refund.StatusProcessed}, nil
	}

	// Goodwill refunds pass checkWindow=false and skip the age check.
	dto, err := s.refunds.CreateRefund(context.Background(), p.ID(), nil, false, CreateRefundRequest{
		AmountCents: 1000,
		Reason:      "goodwill",
	})
	require.NoError(t, err)
	assert.Equal(t, string(refund.StatusProcessed), dto.Status)
}

func TestCreateRefund_AmountExceedsPayment(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-5", 15_000_000, "COP", time.Now(), nil)

	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 15_000_001,
		Reason:      "oops",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsValidation(err))
}

func TestCreateRefund_PartialLedger(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 10_000)
	p := seedPaidPayment(s, b, "wompi", "rk-6", 10_000, "COP", time.Now(), nil)

	n := 0
	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		n++
		return &provider.Refund{ProviderRefundID: fmt.Sprintf("rfd-%d", n), Status: refund.StatusProcessed}, nil
	}

	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 6_000,
		Reason:      "one guest dropped out",
	})
	require.NoError(t, err)

	// The remaining balance is 4,000; asking for 5,000 conflicts.
	_, err = s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 5_000,
		Reason:      "second guest dropped out",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsConflict(err))
	assert.Contains(t, err.Error(), "refundable balance of 4000")

	_, err = s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 4_000,
		Reason:      "second guest dropped out",
	})
	require.NoError(t, err)

	sum, err := s.repos.Refunds.SumProcessedByPaymentID(context.Background(), p.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), sum)
}

func TestCreateRefund_ProviderFailure(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-7", 15_000_000, "COP", time.Now(), nil)

	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		return nil, domainerr.NewProviderError("wompi", assert.AnError)
	}

	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 1_000,
		Reason:      "trip cancelled",
	})
	require.Error(t, err)
	assert.True(t, domainerr.IsProvider(err))

	refunds, lerr := s.repos.Refunds.ListByPaymentID(context.Background(), p.ID())
	require.NoError(t, lerr)
	require.Len(t, refunds, 1)
	assert.Equal(t, refund.StatusFailed, refunds[0].Status())

	// A failed attempt leaves the ledger untouched, so a retry is allowed.
	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		return &provider.Refund{ProviderRefundID: "rfd-2", Status: refund.StatusProcessed}, nil
	}
	_, err = s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 1_000,
		Reason:      "trip cancelled",
	})
	require.NoError(t, err)
}

func TestCreateRefund_CapturerRequiresCaptureID(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)

	capturer := &fakeCapturerProvider{fakeProvider: &fakeProvider{name: "paypal", currency: "USD"}}
	s.refunds.providers = provider.NewFactory(capturer)

	// No capture id in metadata: the refund fails before reaching the gateway.
	p := seedPaidPayment(s, b, "paypal", "rk-8", 12_999, "USD", time.Now(), nil)
	_, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 12_999,
		Reason:      "trip cancelled",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recorded capture")

	b2 := seedBooking(s, ownerID, nil, 15_000_000)
	p2 := seedPaidPayment(s, b2, "paypal", "rk-9", 12_999, "USD", time.Now(),
		map[string]any{provider.MetadataCaptureID: "CAP-9"})

	var gotReq provider.RefundRequest
	capturer.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		gotReq = req
		return &provider.Refund{ProviderRefundID: "RF-9", Status: refund.StatusProcessed}, nil
	}

	_, err = s.refunds.CreateRefund(context.Background(), p2.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 12_999,
		Reason:      "trip cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, "CAP-9", gotReq.CaptureID)
}

func TestCreateRefund_PendingRemoteStatus(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-10", 15_000_000, "COP", time.Now(), nil)

	s.wompi.refundFn = func(req provider.RefundRequest) (*provider.Refund, error) {
		return &provider.Refund{ProviderRefundID: "rfd-3", Status: refund.StatusPending}, nil
	}

	dto, err := s.refunds.CreateRefund(context.Background(), p.ID(), &ownerID, true, CreateRefundRequest{
		AmountCents: 1_000,
		Reason:      "trip cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, string(refund.StatusPending), dto.Status)
	assert.Empty(t, s.notifier.refunds)
}

func TestApplyRefundWebhook_IsIdempotent(t *testing.T) {
	s := newTestStack(t)
	rf := refund.NewRefund(uuid.New(), 1_000, "COP", "trip cancelled", nil)
	rf.AttachProvider("rfd-4")
	require.NoError(t, s.repos.Refunds.Save(context.Background(), rf))

	evt := &provider.WebhookEvent{
		IsRefund:         true,
		ProviderRefundID: "rfd-4",
		RefundStatus:     refund.StatusProcessed,
	}
	require.NoError(t, s.refunds.ApplyRefundWebhook(context.Background(), s.repos, evt))
	require.NoError(t, s.refunds.ApplyRefundWebhook(context.Background(), s.repos, evt))

	assert.Equal(t, refund.StatusProcessed, rf.Status())
	assert.Len(t, s.notifier.refunds, 1)
}

func TestApplyRefundWebhook_UnknownRefundIsDropped(t *testing.T) {
	s := newTestStack(t)
	evt := &provider.WebhookEvent{
		IsRefund:         true,
		ProviderRefundID: "rfd-unknown",
		RefundStatus:     refund.StatusProcessed,
	}
	require.NoError(t, s.refunds.ApplyRefundWebhook(context.Background(), s.repos, evt))
}

func TestListRefunds(t *testing.T) {
	s := newTestStack(t)
	ownerID := uuid.New()
	b := seedBooking(s, ownerID, nil, 15_000_000)
	p := seedPaidPayment(s, b, "wompi", "rk-11", 15_000_000, "COP", time.Now(), nil)

	for i := 0; i < 2; i++ {
		rf := refund.NewRefund(p.ID(), 1_000, "COP", "trip cancelled", &ownerID)
		require.NoError(t, s.repos.Refunds.Save(context.Background(), rf))
	}

	dtos, err := s.refunds.ListRefunds(context.Background(), p.ID())
	require.NoError(t, err)
	assert.Len(t, dtos, 2)
}

func TestListRefunds_UnknownPayment(t *testing.T) {
	s := newTestStack(t)
	_, err := s.refunds.ListRefunds(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, domainerr.IsNotFound(err))
}
