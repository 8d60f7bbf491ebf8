package reconciliation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/AndesTrek-Travel/service-payments/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTxManager struct {
	repos *application.Repos
}

func (m *stubTxManager) Do(_ context.Context, fn func(r *application.Repos) error) error {
	return fn(m.repos)
}

// stubPaymentRepo overrides only the sweep queries; everything else is
// unreachable in these tests.
type stubPaymentRepo struct {
	payment.Repository
	stale   []*payment.Payment
	orphans []*payment.Payment
}

func (r *stubPaymentRepo) FindStale(_ context.Context, lookback, staleAfter time.Duration, limit int) ([]*payment.Payment, error) {
	return r.stale, nil
}

func (r *stubPaymentRepo) FindOrphans(_ context.Context, grace time.Duration, limit int) ([]*payment.Payment, error) {
	return r.orphans, nil
}

func (r *stubPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	return nil, domainerr.NewNotFoundError("Payment", id.String())
}

type captureTransport struct {
	sent    [][]byte
	deleted int
}

func (t *captureTransport) SendMessage(_ context.Context, _ string, body []byte) error {
	t.sent = append(t.sent, body)
	return nil
}

func (t *captureTransport) ReceiveMessages(_ context.Context, _ string, _ int, _ time.Duration) ([]queue.Message, error) {
	msgs := make([]queue.Message, len(t.sent))
	for i, body := range t.sent {
		msgs[i] = queue.Message{Body: body}
	}
	t.sent = nil
	return msgs, nil
}

func (t *captureTransport) DeleteMessage(_ context.Context, _ string, _ queue.Message) error {
	t.deleted++
	return nil
}

func testConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		SweepInterval:   time.Minute,
		BatchSize:       50,
		StaleAfter:      10 * time.Minute,
		LookbackWindow:  24 * time.Hour,
		OrphanGrace:     30 * time.Minute,
		ConsumerMaxMsgs: 10,
		ConsumerWait:    time.Second,
	}
}

func TestProducerSweep_EnqueuesStaleAndOrphans(t *testing.T) {
	stale := payment.NewPayment(uuid.New(), "wompi", 10_000, "COP", "CARD", "sw-1", 15*time.Minute)
	stale.AttachProvider("trx-1", "", nil)
	orphan := payment.NewPayment(uuid.New(), "paypal", 2_000, "USD", "", "sw-2", 15*time.Minute)

	repos := &application.Repos{Payments: &stubPaymentRepo{
		stale:   []*payment.Payment{stale},
		orphans: []*payment.Payment{orphan},
	}}
	transport := &captureTransport{}
	p := NewProducer(&stubTxManager{repos: repos}, transport, testConfig(), zap.NewNop())

	p.sweep(context.Background())

	require.Len(t, transport.sent, 2)
	var first, second ReconcileMessage
	require.NoError(t, json.Unmarshal(transport.sent[0], &first))
	require.NoError(t, json.Unmarshal(transport.sent[1], &second))
	assert.Equal(t, stale.ID(), first.PaymentID)
	assert.Equal(t, "wompi", first.Provider)
	assert.Equal(t, orphan.ID(), second.PaymentID)
	assert.Equal(t, "paypal", second.Provider)
}

func TestProducerSweep_NothingToDo(t *testing.T) {
	repos := &application.Repos{Payments: &stubPaymentRepo{}}
	transport := &captureTransport{}
	p := NewProducer(&stubTxManager{repos: repos}, transport, testConfig(), zap.NewNop())

	p.sweep(context.Background())
	assert.Empty(t, transport.sent)
}

func newTestConsumer() *Consumer {
	repos := &application.Repos{Payments: &stubPaymentRepo{}}
	payments := application.NewPaymentService(
		&stubTxManager{repos: repos},
		provider.NewFactory(),
		nil, nil, nil,
		false, 15*time.Minute,
		zap.NewNop(),
	)
	return NewConsumer(payments, &captureTransport{}, testConfig(), zap.NewNop())
}

func TestConsumerProcess_DropsMalformedMessages(t *testing.T) {
	c := newTestConsumer()
	err := c.process(context.Background(), queue.Message{Body: []byte("not json")})
	assert.NoError(t, err)
}

func TestConsumerProcess_UnknownPaymentIsNoOp(t *testing.T) {
	c := newTestConsumer()
	body, err := json.Marshal(ReconcileMessage{
		PaymentID: uuid.New(),
		Provider:  "wompi",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	// The row may have been deleted between sweep and delivery; the message
	// must still be consumable.
	assert.NoError(t, c.process(context.Background(), queue.Message{Body: body}))
}

// flakyPaymentRepo fails the lookup for one payment and reports the rest
// missing.
type flakyPaymentRepo struct {
	stubPaymentRepo
	failID uuid.UUID
}

func (r *flakyPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	if id == r.failID {
		return nil, assert.AnError
	}
	return nil, domainerr.NewNotFoundError("Payment", id.String())
}

func TestConsumerBatch_StopsOnFailure(t *testing.T) {
	failID := uuid.New()
	repos := &application.Repos{Payments: &flakyPaymentRepo{failID: failID}}
	payments := application.NewPaymentService(
		&stubTxManager{repos: repos},
		provider.NewFactory(),
		nil, nil, nil,
		false, 15*time.Minute,
		zap.NewNop(),
	)
	transport := &captureTransport{}
	c := NewConsumer(payments, transport, testConfig(), zap.NewNop())

	msgs := make([]queue.Message, 0, 2)
	for _, id := range []uuid.UUID{failID, uuid.New()} {
		body, err := json.Marshal(ReconcileMessage{PaymentID: id, Provider: "wompi", Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		msgs = append(msgs, queue.Message{Body: body})
	}

	// Acknowledging the second message would commit past the failed first
	// one, so the whole batch must be left for redelivery.
	c.handleBatch(context.Background(), msgs)
	assert.Equal(t, 0, transport.deleted)
}

func TestConsumerBatch_AcknowledgesProcessedMessages(t *testing.T) {
	c := newTestConsumer()
	transport := &captureTransport{}
	c.transport = transport

	msgs := make([]queue.Message, 0, 2)
	for i := 0; i < 2; i++ {
		body, err := json.Marshal(ReconcileMessage{PaymentID: uuid.New(), Provider: "wompi", Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		msgs = append(msgs, queue.Message{Body: body})
	}

	c.handleBatch(context.Background(), msgs)
	assert.Equal(t, 2, transport.deleted)
}
