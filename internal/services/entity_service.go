package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelrealty/backoffice/internal/backend"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/pkg/errors"
	"github.com/kestrelrealty/backoffice/pkg/logger"
	"github.com/kestrelrealty/backoffice/pkg/metrics"
)

// EntityBackend is the slice of the backend client the entity service uses.
type EntityBackend interface {
	SetStatus(ctx context.Context, t entities.Type, id, status string) error
	Stats(ctx context.Context, t entities.Type) (*backend.Stats, error)
}

// EntityService exposes explicit status management on top of the backend,
// as used by the per-entity management pages. Unlike the click-through
// acknowledgement, these transitions are synchronous and report failures.
type EntityService struct {
	backend  EntityBackend
	registry *entities.Registry
	log      *zap.Logger
}

// NewEntityService constructs an EntityService.
func NewEntityService(b EntityBackend, registry *entities.Registry) (*EntityService, error) {
	if b == nil {
		return nil, errors.New("CONFIG_ERROR", "entity service: backend is required", 500)
	}
	if registry == nil {
		return nil, errors.New("CONFIG_ERROR", "entity service: registry is required", 500)
	}
	return &EntityService{
		backend:  b,
		registry: registry,
		log:      logger.WithModule("entities"),
	}, nil
}

// TransitionStatus moves one entity record to the given status. The status
// must belong to the entity type's own vocabulary; each type has its own
// terminal and intermediate states and they are never shared across types.
func (s *EntityService) TransitionStatus(ctx context.Context, t entities.Type, id, status string) error {
	d, ok := s.registry.Lookup(t)
	if !ok {
		return errors.ErrUnknownEntity
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.ErrBadRequest
	}
	if !d.ValidStatus(status) {
		return errors.ErrInvalidStatus
	}

	if err := s.backend.SetStatus(ctx, t, id, status); err != nil {
		metrics.StatusTransitions.WithLabelValues(string(t), "failed").Inc()
		s.log.Warn("status transition failed",
			zap.String("entity", string(t)),
			zap.String("id", id),
			zap.String("status", status),
			zap.Error(err),
		)
		return err
	}

	metrics.StatusTransitions.WithLabelValues(string(t), "ok").Inc()
	return nil
}

// Stats returns the backend's counts for one entity type.
func (s *EntityService) Stats(ctx context.Context, t entities.Type) (*backend.Stats, error) {
	if _, ok := s.registry.Lookup(t); !ok {
		return nil, errors.ErrUnknownEntity
	}
	return s.backend.Stats(ctx, t)
}
