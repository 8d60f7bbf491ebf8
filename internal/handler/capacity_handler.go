package handler

import (
	"context"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/auth"
	"github.com/AndesTrek-Travel/service-payments/internal/middleware"
	"github.com/AndesTrek-Travel/service-payments/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CapacityHandler handles availability slot endpoints. Slot management is
// resort-operator territory, so mutations require the agent or admin role.
type CapacityHandler struct {
	capacity *application.CapacityService
}

// NewCapacityHandler creates a new CapacityHandler.
func NewCapacityHandler(capacity *application.CapacityService) *CapacityHandler {
	return &CapacityHandler{capacity: capacity}
}

// RegisterRoutes registers all slot routes on the given router group.
func (h *CapacityHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	slots := r.Group("/slots")
	slots.Use(middleware.AuthMiddleware(jwtManager))
	{
		slots.GET("/:id", h.GetSlot)
		slots.POST("", middleware.RequireRole(auth.RoleAgent), h.CreateSlot)
		slots.POST("/:id/reserve", h.Reserve)
		slots.POST("/:id/release", h.Release)
		slots.PATCH("/:id/capacity", middleware.RequireRole(auth.RoleAgent), h.UpdateTotal)
		slots.POST("/:id/deactivate", middleware.RequireRole(auth.RoleAgent), h.Deactivate)
	}
}

// GetSlot handles GET /api/v1/slots/:id
func (h *CapacityHandler) GetSlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot ID")
		return
	}

	dto, err := h.capacity.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// CreateSlot handles POST /api/v1/slots
func (h *CapacityHandler) CreateSlot(c *gin.Context) {
	var req application.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.capacity.CreateSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

type guestCountRequest struct {
	GuestCount int `json:"guest_count" binding:"required,gt=0"`
}

// Reserve handles POST /api/v1/slots/:id/reserve
func (h *CapacityHandler) Reserve(c *gin.Context) {
	h.mutateCapacity(c, h.capacity.Reserve)
}

// Release handles POST /api/v1/slots/:id/release
func (h *CapacityHandler) Release(c *gin.Context) {
	h.mutateCapacity(c, h.capacity.Release)
}

func (h *CapacityHandler) mutateCapacity(c *gin.Context, fn func(ctx context.Context, slotID uuid.UUID, guestCount int) (*application.SlotDTO, error)) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot ID")
		return
	}

	var req guestCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := fn(c.Request.Context(), slotID, req.GuestCount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// UpdateTotal handles PATCH /api/v1/slots/:id/capacity
func (h *CapacityHandler) UpdateTotal(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot ID")
		return
	}

	var req struct {
		TotalCapacity int `json:"total_capacity" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.capacity.UpdateTotal(c.Request.Context(), slotID, req.TotalCapacity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// Deactivate handles POST /api/v1/slots/:id/deactivate
func (h *CapacityHandler) Deactivate(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot ID")
		return
	}

	dto, err := h.capacity.Deactivate(c.Request.Context(), slotID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}
