package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// QueueName is the reconciliation work queue.
const QueueName = "payment.reconciliation"

// ReconcileMessage is the unit of reconciliation work. The producer enqueues
// one per drift candidate; the consumer re-queries the gateway and repairs.
type ReconcileMessage struct {
	PaymentID uuid.UUID `json:"paymentId"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}
