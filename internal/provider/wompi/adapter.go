package wompi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"go.uber.org/zap"
)

// ProviderName is the registry key for the Wompi adapter.
const ProviderName = "wompi"

// Adapter integrates the Wompi gateway. Wompi settles in COP only and signs
// webhook events with a SHA256 checksum over selected payload properties.
type Adapter struct {
	cfg        config.WompiConfig
	production bool
	httpClient *http.Client
	methods    *methodFactory
	logger     *zap.Logger
}

// NewAdapter creates a Wompi adapter.
func NewAdapter(cfg config.WompiConfig, production bool, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:        cfg,
		production: production,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		methods:    newMethodFactory(),
		logger:     logger,
	}
}

func (a *Adapter) Name() string { return ProviderName }
func (a *Adapter) SettlementCurrency() string { return "COP" }

// SubMethods lists the payment sub-methods this adapter can build payloads for.
func (a *Adapter) SubMethods() []string { return a.methods.Tags() }

// PSEBanks lists the supported PSE financial institutions.
func (a *Adapter) PSEBanks() []PSEBank { return pseBanks }

type transactionData struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
	PaymentMethod struct {
		Type  string `json:"type"`
		Extra struct {
			AsyncPaymentURL string `json:"async_payment_url"`
		} `json:"extra"`
	} `json:"payment_method"`
	RedirectURL string `json:"redirect_url"`
}

type transactionEnvelope struct {
	Data transactionData `json:"data"`
}

// CreatePayment creates a Wompi transaction. The request carries an integrity
// signature of reference+amount+currency+secret and a per-method payload
// built by the method strategy for the intent's sub-method.
func (a *Adapter) CreatePayment(ctx context.Context, intent provider.Intent) (*provider.Payment, error) {
	if intent.Currency != "COP" {
		return nil, domainerr.NewValidationError("wompi settles in COP only, got " + intent.Currency)
	}

	strategy, err := a.methods.Get(intent.Method)
	if err != nil {
		return nil, err
	}
	methodPayload, err := strategy.Build(intent)
	if err != nil {
		return nil, err
	}

	acceptanceToken, err := a.fetchAcceptanceToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"acceptance_token": acceptanceToken,
		"amount_in_cents":  intent.AmountCents,
		"currency":         intent.Currency,
		"customer_email":   intent.CustomerEmail,
		"reference":        intent.Reference,
		"signature":        a.integritySignature(intent.Reference, intent.AmountCents, intent.Currency),
		"payment_method":   methodPayload,
	}
	if intent.RedirectURL != "" {
		body["redirect_url"] = intent.RedirectURL
	}

	var envelope transactionEnvelope
	if err := a.doJSON(ctx, http.MethodPost, "/transactions", body, &envelope); err != nil {
		return nil, err
	}

	checkoutURL := envelope.Data.PaymentMethod.Extra.AsyncPaymentURL
	if checkoutURL == "" {
		checkoutURL = envelope.Data.RedirectURL
	}

	return &provider.Payment{
		ProviderPaymentID: envelope.Data.ID,
		CheckoutURL:       checkoutURL,
		Status:            mapTransactionStatus(envelope.Data.Status),
		Metadata: map[string]any{
			"payment_method_type": envelope.Data.PaymentMethod.Type,
			"status_message":      envelope.Data.StatusMessage,
		},
	}, nil
}

// GetPaymentStatus queries a Wompi transaction.
func (a *Adapter) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*provider.Payment, error) {
	var envelope transactionEnvelope
	if err := a.doJSON(ctx, http.MethodGet, "/transactions/"+providerPaymentID, nil, &envelope); err != nil {
		return nil, err
	}
	return &provider.Payment{
		ProviderPaymentID: envelope.Data.ID,
		Status:            mapTransactionStatus(envelope.Data.Status),
		Metadata: map[string]any{
			"status_message": envelope.Data.StatusMessage,
		},
	}, nil
}

type refundData struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	AmountInCents int64  `json:"amount_in_cents"`
}

type refundEnvelope struct {
	Data refundData `json:"data"`
}

// CreateRefund creates a Wompi refund against a settled transaction.
func (a *Adapter) CreateRefund(ctx context.Context, req provider.RefundRequest) (*provider.Refund, error) {
	body := map[string]any{
		"transaction_id":  req.ProviderPaymentID,
		"amount_in_cents": req.AmountCents,
	}
	var envelope refundEnvelope
	if err := a.doJSON(ctx, http.MethodPost, "/refunds", body, &envelope); err != nil {
		return nil, err
	}
	return &provider.Refund{
		ProviderRefundID: envelope.Data.ID,
		Status:           mapRefundStatus(envelope.Data.Status),
	}, nil
}

// GetRefundStatus queries a Wompi refund.
func (a *Adapter) GetRefundStatus(ctx context.Context, providerRefundID string) (*provider.Refund, error) {
	var envelope refundEnvelope
	if err := a.doJSON(ctx, http.MethodGet, "/refunds/"+providerRefundID, nil, &envelope); err != nil {
		return nil, err
	}
	return &provider.Refund{
		ProviderRefundID: envelope.Data.ID,
		Status:           mapRefundStatus(envelope.Data.Status),
	}, nil
}

// eventEnvelope is the Wompi webhook payload shape.
type eventEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Transaction transactionData `json:"transaction"`
		Refund      refundData      `json:"refund"`
	} `json:"data"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	SentAt    string `json:"sent_at"`
}

// ParseEventMeta derives the natural event id from the payload. Wompi carries
// no event id of its own, so the (event, transaction id, timestamp) triple
// serves as one.
func (a *Adapter) ParseEventMeta(payload []byte) (provider.EventMeta, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return provider.EventMeta{}, domainerr.NewValidationError("malformed wompi webhook payload: " + err.Error())
	}
	subject := env.Data.Transaction.ID
	if subject == "" {
		subject = env.Data.Refund.ID
	}
	if env.Event == "" || subject == "" {
		return provider.EventMeta{}, domainerr.NewValidationError("wompi webhook missing event or transaction id")
	}
	return provider.EventMeta{
		ID:        fmt.Sprintf("%s:%s:%d", env.Event, subject, env.Timestamp),
		Timestamp: time.Unix(env.Timestamp, 0).UTC(),
	}, nil
}

// ValidateWebhook verifies the event checksum: SHA256 over the concatenated
// values of the signed properties, the timestamp, and the events secret.
// Outside production a missing checksum is tolerated with a warning.
func (a *Adapter) ValidateWebhook(ctx context.Context, payload []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, domainerr.NewValidationError("malformed wompi webhook payload: " + err.Error())
	}

	if env.Signature.Checksum == "" {
		if a.production {
			return nil, domainerr.NewValidationError("wompi webhook missing signature checksum")
		}
		a.logger.Warn("wompi webhook has no signature checksum, accepting in non-production",
			zap.String("event", env.Event),
		)
	} else {
		expected := a.eventChecksum(&env)
		got := strings.ToLower(env.Signature.Checksum)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			return nil, domainerr.NewValidationError("wompi webhook signature mismatch")
		}
	}

	evt := &provider.WebhookEvent{
		EventType:  env.Event,
		RawPayload: payload,
	}
	if strings.HasPrefix(env.Event, "refund.") {
		evt.IsRefund = true
		evt.ProviderRefundID = env.Data.Refund.ID
		evt.ProviderPaymentID = env.Data.Refund.TransactionID
		evt.RefundStatus = mapRefundStatus(env.Data.Refund.Status)
		return evt, nil
	}

	evt.ProviderPaymentID = env.Data.Transaction.ID
	evt.Reference = env.Data.Transaction.Reference
	evt.Status = mapTransactionStatus(env.Data.Transaction.Status)
	evt.Metadata = map[string]any{
		"amount_in_cents": env.Data.Transaction.AmountInCents,
		"status_message":  env.Data.Transaction.StatusMessage,
	}
	return evt, nil
}

// eventChecksum concatenates the signed property values, the timestamp and
// the events secret, then hex-encodes the SHA256.
func (a *Adapter) eventChecksum(env *eventEnvelope) string {
	var sb strings.Builder
	raw := map[string]any{}
	// Re-marshal the data section so property paths resolve generically.
	b, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(b, &raw)

	for _, prop := range env.Signature.Properties {
		sb.WriteString(propertyValue(raw, prop))
	}
	sb.WriteString(fmt.Sprintf("%d", env.Timestamp))
	sb.WriteString(a.cfg.EventsSecret)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// propertyValue resolves a dotted path like "transaction.amount_in_cents"
// against a decoded JSON object, rendering numbers without an exponent.
func propertyValue(obj map[string]any, path string) string {
	parts := strings.Split(path, ".")
	var cur any = obj
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[part]
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// integritySignature is the transaction-create signature Wompi requires.
func (a *Adapter) integritySignature(reference string, amountCents int64, currency string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s", reference, amountCents, currency, a.cfg.IntegritySecret)))
	return hex.EncodeToString(sum[:])
}

type merchantEnvelope struct {
	Data struct {
		PresignedAcceptance struct {
			AcceptanceToken string `json:"acceptance_token"`
		} `json:"presigned_acceptance"`
	} `json:"data"`
}

func (a *Adapter) fetchAcceptanceToken(ctx context.Context) (string, error) {
	var envelope merchantEnvelope
	if err := a.doJSON(ctx, http.MethodGet, "/merchants/"+a.cfg.PublicKey, nil, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.PresignedAcceptance.AcceptanceToken == "" {
		return "", domainerr.NewProviderError(ProviderName, fmt.Errorf("merchant info missing acceptance token"))
	}
	return envelope.Data.PresignedAcceptance.AcceptanceToken, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.PrivateKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domainerr.NewProviderError(ProviderName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainerr.NewProviderError(ProviderName, err)
	}
	if resp.StatusCode >= 400 {
		return domainerr.NewProviderError(ProviderName,
			fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody)))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return domainerr.NewProviderError(ProviderName, fmt.Errorf("unexpected response body: %w", err))
		}
	}
	return nil
}

// mapTransactionStatus maps Wompi's transaction vocabulary onto the canonical
// payment statuses.
func mapTransactionStatus(status string) payment.Status {
	switch strings.ToUpper(status) {
	case "APPROVED":
		return payment.StatusPaid
	case "PENDING":
		return payment.StatusPending
	case "DECLINED", "ERROR":
		return payment.StatusFailed
	case "VOIDED":
		return payment.StatusCancelled
	default:
		return payment.StatusPending
	}
}

// mapRefundStatus maps Wompi's refund vocabulary onto the canonical refund
// statuses.
func mapRefundStatus(status string) refund.Status {
	switch strings.ToUpper(status) {
	case "APPROVED":
		return refund.StatusProcessed
	case "PENDING":
		return refund.StatusPending
	default:
		return refund.StatusFailed
	}
}
