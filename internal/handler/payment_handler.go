package handler

import (
	"net/http"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/auth"
	"github.com/AndesTrek-Travel/service-payments/internal/middleware"
	"github.com/AndesTrek-Travel/service-payments/internal/provider/wompi"
	"github.com/AndesTrek-Travel/service-payments/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles HTTP requests for payment operations.
type PaymentHandler struct {
	payments *application.PaymentService
	refunds  *application.RefundService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *application.PaymentService, refunds *application.RefundService) *PaymentHandler {
	return &PaymentHandler{payments: payments, refunds: refunds}
}

// RegisterRoutes registers all payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	providers := r.Group("/providers")
	{
		providers.GET("/wompi/methods", h.ListWompiMethods)
		providers.GET("/wompi/pse-banks", h.ListPSEBanks)
	}

	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware(jwtManager))
	{
		payments.POST("", middleware.RequireRole(auth.RoleTraveler), h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
		payments.GET("/booking/:bookingId", h.GetPaymentByBooking)
		payments.POST("/:id/cancel", middleware.RequireRole(auth.RoleTraveler), h.CancelPayment)
		payments.POST("/:id/refund", middleware.RequireRole(auth.RoleTraveler), h.CreateRefund)
		payments.GET("/:id/refunds", h.ListRefunds)
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req application.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.payments.CreatePayment(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	dto, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// GetPaymentByBooking handles GET /api/v1/payments/booking/:bookingId
func (h *PaymentHandler) GetPaymentByBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	dto, err := h.payments.GetPaymentByBooking(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// CancelPayment handles POST /api/v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	dto, err := h.payments.CancelPayment(c.Request.Context(), paymentID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// CreateRefund handles POST /api/v1/payments/:id/refund
func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	var req application.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// Admin refunds skip the ownership check and may waive the refund window.
	requestedBy := &userID
	checkWindow := true
	if role, _ := middleware.GetUserRole(c); role == auth.RoleAdmin {
		requestedBy = nil
		checkWindow = false
	}

	dto, err := h.refunds.CreateRefund(c.Request.Context(), paymentID, requestedBy, checkWindow, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// ListRefunds handles GET /api/v1/payments/:id/refunds
func (h *PaymentHandler) ListRefunds(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	dtos, err := h.refunds.ListRefunds(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dtos)
}

// ListWompiMethods handles GET /api/v1/providers/wompi/methods
func (h *PaymentHandler) ListWompiMethods(c *gin.Context) {
	response.Success(c, gin.H{"methods": wompi.SupportedMethods()})
}

// ListPSEBanks handles GET /api/v1/providers/wompi/pse-banks
func (h *PaymentHandler) ListPSEBanks(c *gin.Context) {
	response.Success(c, gin.H{"banks": wompi.PSEBanks()})
}
