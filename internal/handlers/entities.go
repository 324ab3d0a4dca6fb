package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/middleware"
	"github.com/kestrelrealty/backoffice/internal/services"
	"github.com/kestrelrealty/backoffice/pkg/errors"
	"github.com/kestrelrealty/backoffice/pkg/response"
)

// EntityHandler exposes explicit status management for the tracked entity types.
type EntityHandler struct {
	service  *services.EntityService
	registry *entities.Registry
}

// NewEntityHandler constructs an entity handler.
func NewEntityHandler(service *services.EntityService, registry *entities.Registry) *EntityHandler {
	return &EntityHandler{service: service, registry: registry}
}

// Transition moves one record to a new status within its type's vocabulary.
func (h *EntityHandler) Transition(c *gin.Context) {
	if c.GetString(middleware.CtxUserIDKey) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	d, err := h.registry.Parse(c.Param("type"))
	if err != nil {
		response.Error(c, errors.ErrUnknownEntity)
		return
	}

	var payload struct {
		ID     string `json:"id" validate:"required"`
		Status string `json:"status" validate:"required"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.TransitionStatus(requestContext(c), d.Type, payload.ID, payload.Status); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": payload.ID, "status": payload.Status})
}

// Stats proxies the backend's per-status counts for one entity type.
func (h *EntityHandler) Stats(c *gin.Context) {
	if c.GetString(middleware.CtxUserIDKey) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	d, err := h.registry.Parse(c.Param("type"))
	if err != nil {
		response.Error(c, errors.ErrUnknownEntity)
		return
	}

	stats, err := h.service.Stats(requestContext(c), d.Type)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}
