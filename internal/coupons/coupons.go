package coupons

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// TopicCoupons carries coupon lifecycle commands for the booking service.
	TopicCoupons = "booking.coupons"

	// EventCouponsUsed asks the booking service to permanently mark a
	// booking's reserved coupons as used.
	EventCouponsUsed = "booking.coupons.used"
)

// CouponsUsedEvent is the payload of an EventCouponsUsed message.
type CouponsUsedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaCouponService tells the booking service to burn a booking's coupons
// once its payment settles. Coupon state lives with bookings, so this side
// only announces the settlement.
type KafkaCouponService struct {
	writer *kafkago.Writer
	source string
	logger *zap.Logger
}

// NewKafkaCouponService creates a coupon service publishing to the coupon
// topic.
func NewKafkaCouponService(brokers []string, source string, logger *zap.Logger) *KafkaCouponService {
	return &KafkaCouponService{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  TopicCoupons,
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		source: source,
		logger: logger,
	}
}

// MarkCouponsUsedForBooking publishes the coupons-used command for a booking.
func (s *KafkaCouponService) MarkCouponsUsedForBooking(ctx context.Context, bookingID uuid.UUID) error {
	ce, err := notify.NewCloudEvent(s.source, EventCouponsUsed, CouponsUsedEvent{
		BookingID:  bookingID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	value, err := json.Marshal(ce)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(bookingID.String()),
		Value: value,
	})
}

// Close releases the underlying writer.
func (s *KafkaCouponService) Close() error { return s.writer.Close() }
