//go:build integration

package main_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/coupons"
	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/AndesTrek-Travel/service-payments/internal/provider/wompi"
	"github.com/AndesTrek-Travel/service-payments/internal/rates"
	"github.com/AndesTrek-Travel/service-payments/internal/repository"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	testIntegritySecret = "test_integrity_secret"
	testEventsSecret    = "test_events_secret"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// serviceStack holds wired-up payment service components backed by real
// Postgres and Kafka plus a stub Wompi gateway.
type serviceStack struct {
	Payments *application.PaymentService
	Refunds  *application.RefundService
	Gateway  *wompiStub
	Cleanup  func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a
// connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_payments",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_payments sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error)
	require.NoError(t, db.AutoMigrate(
		&repository.BookingModel{},
		&repository.SlotModel{},
		&repository.InventoryLockModel{},
		&repository.AgentAgreementModel{},
		&repository.PaymentModel{},
		&repository.RefundModel{},
		&repository.WebhookEventModel{},
		&repository.CommissionModel{},
	))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, notify.TopicNotifications, coupons.TopicCoupons)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// wompiStub is an in-process fake of the Wompi API surface the adapter uses.
type wompiStub struct {
	Server *httptest.Server

	mu       sync.Mutex
	next     int
	txStatus map[string]string
}

func newWompiStub(t *testing.T) *wompiStub {
	t.Helper()
	s := &wompiStub{txStatus: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /merchants/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"presigned_acceptance": map[string]any{"acceptance_token": "accept-tok"},
			},
		})
	})
	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		s.next++
		id := fmt.Sprintf("trx-int-%d", s.next)
		s.txStatus[id] = "PENDING"
		s.mu.Unlock()

		writeJSON(w, map[string]any{
			"data": map[string]any{
				"id":        id,
				"status":    "PENDING",
				"reference": req["reference"],
				"payment_method": map[string]any{
					"type":  "NEQUI",
					"extra": map[string]any{"async_payment_url": "https://checkout.example/" + id},
				},
			},
		})
	})
	mux.HandleFunc("GET /transactions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/transactions/")
		s.mu.Lock()
		status, ok := s.txStatus[id]
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{"id": id, "status": status},
		})
	})
	mux.HandleFunc("POST /refunds", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		s.next++
		id := fmt.Sprintf("rfd-int-%d", s.next)
		s.mu.Unlock()

		writeJSON(w, map[string]any{
			"data": map[string]any{
				"id":             id,
				"status":         "APPROVED",
				"transaction_id": req["transaction_id"],
			},
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// SetTransactionStatus changes what the stub reports for a transaction.
func (s *wompiStub) SetTransactionStatus(id, status string) {
	s.mu.Lock()
	s.txStatus[id] = status
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// setupServiceStack wires the application services against real Postgres,
// real Kafka and the stub gateway.
func setupServiceStack(t *testing.T, db *gorm.DB, brokers []string) *serviceStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	gateway := newWompiStub(t)
	wompiAdapter := wompi.NewAdapter(config.WompiConfig{
		BaseURL:         gateway.Server.URL,
		PublicKey:       "pub_test_key",
		PrivateKey:      "prv_test_key",
		IntegritySecret: testIntegritySecret,
		EventsSecret:    testEventsSecret,
	}, false, logger)

	factory := provider.NewFactory(wompiAdapter)
	txm := repository.NewTxManager(db)
	notifier := notify.NewKafkaNotifier(brokers, "service-payments-test", logger)
	couponSvc := coupons.NewKafkaCouponService(brokers, "service-payments-test", logger)
	rateSvc := rates.NewTableService(map[string]float64{"COP": 1.0, "USD": 4000.0})

	confirmer := application.NewConfirmationService(couponSvc, notifier, 1000, logger)
	refunds := application.NewRefundService(txm, factory, notifier, 48*time.Hour, logger)
	payments := application.NewPaymentService(txm, factory, rateSvc, confirmer, refunds, false, 15*time.Minute, logger)

	return &serviceStack{
		Payments: payments,
		Refunds:  refunds,
		Gateway:  gateway,
		Cleanup: func() {
			_ = notifier.Close()
			_ = couponSvc.Close()
		},
	}
}

// seedBooking inserts a pending booking with an unconsumed inventory lock and,
// when agentID is set, an active agreement at 50,000 COP-cents per guest.
func seedBooking(t *testing.T, db *gorm.DB, ownerID uuid.UUID, agentID *uuid.UUID, guests int, totalCents int64) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	resortID := uuid.New()
	slotID := uuid.New()
	bookingID := uuid.New()

	require.NoError(t, db.Create(&repository.BookingModel{
		ID:         bookingID,
		OwnerID:    ownerID,
		ResortID:   resortID,
		AgentID:    agentID,
		SlotID:     slotID,
		Guests:     guests,
		TotalCents: totalCents,
		Currency:   "COP",
		Status:     "pending",
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error, "failed to seed booking")

	require.NoError(t, db.Create(&repository.InventoryLockModel{
		ID:        uuid.New(),
		BookingID: bookingID,
		SlotID:    slotID,
		Guests:    guests,
		CreatedAt: now,
	}).Error, "failed to seed inventory lock")

	if agentID != nil {
		require.NoError(t, db.Create(&repository.AgentAgreementModel{
			ID:             uuid.New(),
			AgentID:        *agentID,
			ResortID:       resortID,
			PerPersonCents: 50_000,
			Active:         true,
			CreatedAt:      now,
		}).Error, "failed to seed agent agreement")
	}

	return bookingID
}

// signedWompiEvent builds a transaction webhook payload with a valid checksum.
func signedWompiEvent(txID, status, reference string, amountCents int64, timestamp int64) []byte {
	props := []string{"transaction.id", "transaction.status", "transaction.amount_in_cents"}
	concat := fmt.Sprintf("%s%s%d%d%s", txID, status, amountCents, timestamp, testEventsSecret)
	sum := sha256.Sum256([]byte(concat))

	payload := map[string]any{
		"event": "transaction.updated",
		"data": map[string]any{
			"transaction": map[string]any{
				"id":              txID,
				"status":          status,
				"reference":       reference,
				"amount_in_cents": amountCents,
			},
		},
		"signature": map[string]any{
			"properties": props,
			"checksum":   hex.EncodeToString(sum[:]),
		},
		"timestamp": timestamp,
	}
	b, _ := json.Marshal(payload)
	return b
}

// waitForPaymentStatus polls the payments table until the status matches.
func waitForPaymentStatus(t *testing.T, db *gorm.DB, paymentID uuid.UUID, expectedStatus string, timeout time.Duration) repository.PaymentModel {
	t.Helper()
	var result repository.PaymentModel
	require.Eventually(t, func() bool {
		var model repository.PaymentModel
		if err := db.Where("id = ?", paymentID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "payment did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) notify.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := notify.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with
// "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
