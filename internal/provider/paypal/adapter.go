package paypal

import (
	"bytes"
	"context"
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

// ProviderName is the registry key for the PayPal adapter.
const ProviderName = "paypal"

// MetadataCaptureID is the payment metadata key holding the capture id that
// refunds must target.
const MetadataCaptureID = provider.MetadataCaptureID

// Adapter integrates the PayPal gateway through the Orders v2 API. PayPal
// settles in USD here and requires an explicit capture step, so the adapter
// implements provider.Capturer.
type Adapter struct {
	cfg        config.PayPalConfig
	production bool
	httpClient *http.Client
	tokens     *tokenSource
	logger     *zap.Logger
}

// NewAdapter creates a PayPal adapter.
func NewAdapter(cfg config.PayPalConfig, production bool, logger *zap.Logger) *Adapter {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Adapter{
		cfg:        cfg,
		production: production,
		httpClient: httpClient,
		tokens:     newTokenSource(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, httpClient),
		logger:     logger,
	}
}

func (a *Adapter) Name() string { return ProviderName }
func (a *Adapter) SettlementCurrency() string { return "USD" }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreatePayment creates a PayPal order with CAPTURE intent and returns the
// approval link as the checkout URL.
func (a *Adapter) CreatePayment(ctx context.Context, intent provider.Intent) (*provider.Payment, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": intent.Reference,
			"amount": map[string]any{
				"currency_code": intent.Currency,
				"value":         centsToDecimal(intent.AmountCents),
			},
		}},
		"application_context": map[string]any{
			"return_url": intent.RedirectURL,
			"user_action": "PAY_NOW",
		},
	}

	headers := map[string]string{}
	if intent.IdempotencyKey != "" {
		headers["PayPal-Request-Id"] = intent.IdempotencyKey
	}

	var order orderResponse
	if err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", body, headers, &order); err != nil {
		return nil, err
	}

	var approveURL string
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}

	return &provider.Payment{
		ProviderPaymentID: order.ID,
		CheckoutURL:       approveURL,
		Status:            mapOrderStatus(order.Status),
		Metadata:          map[string]any{"order_status": order.Status},
	}, nil
}

// GetPaymentStatus queries a PayPal order.
func (a *Adapter) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*provider.Payment, error) {
	var order orderResponse
	if err := a.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+providerPaymentID, nil, nil, &order); err != nil {
		return nil, err
	}

	metadata := map[string]any{"order_status": order.Status}
	if id := captureID(&order); id != "" {
		metadata[MetadataCaptureID] = id
	}
	return &provider.Payment{
		ProviderPaymentID: order.ID,
		Status:            mapOrderStatus(order.Status),
		Metadata:          metadata,
	}, nil
}

// CapturePayment finalizes an approved order and returns the capture id.
func (a *Adapter) CapturePayment(ctx context.Context, providerPaymentID string) (string, error) {
	var order orderResponse
	err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+providerPaymentID+"/capture",
		map[string]any{}, nil, &order)
	if err != nil {
		return "", err
	}
	id := captureID(&order)
	if id == "" {
		return "", domainerr.NewProviderError(ProviderName, fmt.Errorf("capture response carries no capture id"))
	}
	return id, nil
}

// CreateRefund refunds a capture. PayPal refunds target the capture id, not
// the order id.
func (a *Adapter) CreateRefund(ctx context.Context, req provider.RefundRequest) (*provider.Refund, error) {
	if req.CaptureID == "" {
		return nil, domainerr.NewValidationError("paypal refunds require a capture id")
	}
	body := map[string]any{
		"amount": map[string]any{
			"currency_code": req.Currency,
			"value":         centsToDecimal(req.AmountCents),
		},
		"note_to_payer": req.Reason,
	}

	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/v2/payments/captures/"+req.CaptureID+"/refund", body, nil, &parsed); err != nil {
		return nil, err
	}
	return &provider.Refund{
		ProviderRefundID: parsed.ID,
		Status:           mapRefundStatus(parsed.Status),
	}, nil
}

// GetRefundStatus queries a PayPal refund.
func (a *Adapter) GetRefundStatus(ctx context.Context, providerRefundID string) (*provider.Refund, error) {
	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/v2/payments/refunds/"+providerRefundID, nil, nil, &parsed); err != nil {
		return nil, err
	}
	return &provider.Refund{
		ProviderRefundID: parsed.ID,
		Status:           mapRefundStatus(parsed.Status),
	}, nil
}

// webhookBody is the PayPal webhook payload shape.
type webhookBody struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		// Present on capture/refund resources.
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseEventMeta extracts PayPal's own event id and create time.
func (a *Adapter) ParseEventMeta(payload []byte) (provider.EventMeta, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return provider.EventMeta{}, domainerr.NewValidationError("malformed paypal webhook payload: " + err.Error())
	}
	if body.ID == "" {
		return provider.EventMeta{}, domainerr.NewValidationError("paypal webhook missing event id")
	}
	ts, err := time.Parse(time.RFC3339, body.CreateTime)
	if err != nil {
		return provider.EventMeta{}, domainerr.NewValidationError("paypal webhook has invalid create_time")
	}
	return provider.EventMeta{ID: body.ID, Timestamp: ts.UTC()}, nil
}

// ValidateWebhook verifies the transmission signature through PayPal's
// verify-webhook-signature endpoint. The signature material arrives in the
// transmission headers; verification is therefore an API round trip rather
// than a local HMAC. Outside production missing headers are tolerated with a
// warning.
func (a *Adapter) ValidateWebhook(ctx context.Context, payload []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domainerr.NewValidationError("malformed paypal webhook payload: " + err.Error())
	}

	transmissionID := headers["Paypal-Transmission-Id"]
	if transmissionID == "" {
		if a.production {
			return nil, domainerr.NewValidationError("paypal webhook missing transmission headers")
		}
		a.logger.Warn("paypal webhook has no transmission headers, accepting in non-production",
			zap.String("event_type", body.EventType),
		)
	} else {
		verifyReq := map[string]any{
			"auth_algo":         headers["Paypal-Auth-Algo"],
			"cert_url":          headers["Paypal-Cert-Url"],
			"transmission_id":   transmissionID,
			"transmission_sig":  headers["Paypal-Transmission-Sig"],
			"transmission_time": headers["Paypal-Transmission-Time"],
			"webhook_id":        a.cfg.WebhookID,
			"webhook_event":     json.RawMessage(payload),
		}
		var verifyResp struct {
			VerificationStatus string `json:"verification_status"`
		}
		if err := a.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyReq, nil, &verifyResp); err != nil {
			return nil, err
		}
		if verifyResp.VerificationStatus != "SUCCESS" {
			return nil, domainerr.NewValidationError("paypal webhook signature verification failed: " + verifyResp.VerificationStatus)
		}
	}

	evt := &provider.WebhookEvent{
		EventType:  body.EventType,
		RawPayload: payload,
	}

	if strings.Contains(body.EventType, "REFUND") {
		evt.IsRefund = true
		evt.ProviderRefundID = body.Resource.ID
		evt.RefundStatus = mapRefundStatus(body.Resource.Status)
		return evt, nil
	}

	// For capture events the resource is the capture; the order id the
	// payment row knows arrives in the supplementary data.
	if strings.HasPrefix(body.EventType, "PAYMENT.CAPTURE.") {
		evt.ProviderPaymentID = body.Resource.SupplementaryData.RelatedIDs.OrderID
		evt.Metadata = map[string]any{MetadataCaptureID: body.Resource.ID}
		evt.Status = mapCaptureStatus(body.Resource.Status)
		return evt, nil
	}

	evt.ProviderPaymentID = body.Resource.ID
	evt.Status = mapOrderStatus(body.Resource.Status)
	if body.EventType == "CHECKOUT.ORDER.APPROVED" {
		evt.Status = payment.StatusAuthorized
	}
	return evt, nil
}

func captureID(order *orderResponse) string {
	for _, pu := range order.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return ""
}

func (a *Adapter) doJSON(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

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
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return domainerr.NewProviderError(ProviderName, fmt.Errorf("unexpected response body: %w", err))
		}
	}
	return nil
}

// centsToDecimal renders an amount in cents as PayPal's decimal string.
func centsToDecimal(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// mapOrderStatus maps PayPal's order vocabulary onto the canonical payment
// statuses.
func mapOrderStatus(status string) payment.Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return payment.StatusPaid
	case "APPROVED":
		return payment.StatusAuthorized
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return payment.StatusPending
	case "VOIDED":
		return payment.StatusCancelled
	default:
		return payment.StatusPending
	}
}

// mapCaptureStatus maps capture resource states.
func mapCaptureStatus(status string) payment.Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return payment.StatusPaid
	case "PENDING":
		return payment.StatusAuthorized
	case "DECLINED", "FAILED":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

// mapRefundStatus maps PayPal's refund vocabulary onto the canonical refund
// statuses.
func mapRefundStatus(status string) refund.Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return refund.StatusProcessed
	case "PENDING":
		return refund.StatusPending
	case "CANCELLED":
		return refund.StatusCancelled
	default:
		return refund.StatusFailed
	}
}
