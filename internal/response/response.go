package response

import (
	"net/http"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response body for all endpoints.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success writes a 200 with the given payload.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 with the given payload.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// BadRequest writes a 400 with the given message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Error: message})
}

// Error maps a domain error to its HTTP status.
func Error(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case domainerr.IsNotFound(err):
		status = http.StatusNotFound
	case domainerr.IsConflict(err):
		status = http.StatusConflict
	case domainerr.IsValidation(err):
		status = http.StatusBadRequest
	case domainerr.IsProvider(err):
		status = http.StatusBadGateway
	}
	c.JSON(status, Envelope{Success: false, Error: err.Error()})
}
