package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelrealty/backoffice/internal/backend"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/pkg/errors"
)

type stubEntityBackend struct {
	recordingWriter
	stats *backend.Stats
}

func (b *stubEntityBackend) Stats(context.Context, entities.Type) (*backend.Stats, error) {
	return b.stats, nil
}

func newTestEntityService(t *testing.T, b EntityBackend) *EntityService {
	t.Helper()
	svc, err := NewEntityService(b, entities.NewRegistry())
	require.NoError(t, err)
	return svc
}

func TestTransitionStatusForwardsValidTransitions(t *testing.T) {
	b := &stubEntityBackend{}
	svc := newTestEntityService(t, b)

	err := svc.TransitionStatus(context.Background(), entities.TypeAppointment, "a1", "confirmed")
	require.NoError(t, err)
	require.Equal(t, []string{"appointment/a1/confirmed"}, b.snapshot())
}

func TestTransitionStatusRejectsForeignVocabulary(t *testing.T) {
	b := &stubEntityBackend{}
	svc := newTestEntityService(t, b)

	// "confirmed" belongs to appointments, not contacts.
	err := svc.TransitionStatus(context.Background(), entities.TypeContact, "c1", "confirmed")
	require.ErrorIs(t, err, errors.ErrInvalidStatus)
	require.Empty(t, b.snapshot(), "invalid transitions never reach the backend")
}

func TestTransitionStatusRejectsUnknownType(t *testing.T) {
	b := &stubEntityBackend{}
	svc := newTestEntityService(t, b)

	err := svc.TransitionStatus(context.Background(), "escrow-ticket", "x", "new")
	require.ErrorIs(t, err, errors.ErrUnknownEntity)
}

func TestTransitionStatusRejectsEmptyID(t *testing.T) {
	b := &stubEntityBackend{}
	svc := newTestEntityService(t, b)

	err := svc.TransitionStatus(context.Background(), entities.TypeContact, "", "pending")
	require.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestTransitionStatusPropagatesBackendFailures(t *testing.T) {
	b := &stubEntityBackend{recordingWriter: recordingWriter{err: errors.ErrNotFound}}
	svc := newTestEntityService(t, b)

	err := svc.TransitionStatus(context.Background(), entities.TypeContact, "gone", "responded")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStatsRequiresAKnownType(t *testing.T) {
	b := &stubEntityBackend{stats: &backend.Stats{Total: 7, Counts: map[string]int{"new": 2}}}
	svc := newTestEntityService(t, b)

	stats, err := svc.Stats(context.Background(), entities.TypeInsuranceQuote)
	require.NoError(t, err)
	require.Equal(t, 7, stats.Total)

	_, err = svc.Stats(context.Background(), "escrow-ticket")
	require.ErrorIs(t, err, errors.ErrUnknownEntity)
}
