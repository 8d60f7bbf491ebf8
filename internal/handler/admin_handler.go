package handler

import (
	"strconv"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/auth"
	"github.com/AndesTrek-Travel/service-payments/internal/middleware"
	"github.com/AndesTrek-Travel/service-payments/internal/response"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles admin-only payment endpoints.
type AdminHandler struct {
	payments *application.PaymentService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(payments *application.PaymentService) *AdminHandler {
	return &AdminHandler{payments: payments}
}

// RegisterRoutes registers all admin routes on the given router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/payments", h.ListPayments)
		admin.GET("/payments/stats", h.GetStats)
	}
}

// ListPayments handles GET /api/v1/admin/payments
func (h *AdminHandler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	dtos, total, err := h.payments.ListAllPayments(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"payments": dtos,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// GetStats handles GET /api/v1/admin/payments/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.payments.GetPaymentStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}
