package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler ingests gateway webhook deliveries. These routes carry no
// auth middleware; authenticity comes from signature verification inside the
// service.
type WebhookHandler struct {
	payments  *application.PaymentService
	providers *provider.Factory
	logger    *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(payments *application.PaymentService, providers *provider.Factory, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, providers: providers, logger: logger}
}

// RegisterRoutes registers the webhook routes on the given router group.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:provider", h.Receive)
}

// Receive handles POST /api/v1/webhooks/:provider
//
// Gateways retry on non-2xx, so processing failures are acknowledged with a
// 200 and left to reconciliation. Only requests that can never succeed get a
// 4xx: unknown provider, unreadable body, non-object payload.
func (h *WebhookHandler) Receive(c *gin.Context) {
	providerName := c.Param("provider")
	if _, err := h.providers.Get(providerName); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var probe map[string]any
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be a JSON object"})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}

	if err := h.payments.ProcessWebhook(c.Request.Context(), providerName, payload, headers); err != nil {
		h.logger.Warn("webhook processing failed, acknowledging anyway",
			zap.String("provider", providerName),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
