package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kestrelrealty/backoffice/internal/database/testutil"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/models"
	"github.com/kestrelrealty/backoffice/pkg/errors"
)

type recordingWriter struct {
	mu    sync.Mutex
	calls []string // "type/id/status"
	err   error
}

func (w *recordingWriter) SetStatus(_ context.Context, t entities.Type, id, status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, string(t)+"/"+id+"/"+status)
	return w.err
}

func (w *recordingWriter) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func newTestAckService(t *testing.T, writer StatusWriter) (*AckService, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAckService(db, writer, entities.NewRegistry())
	require.NoError(t, err)
	svc.async = false // run the transition inline so outcomes are observable
	return svc, db
}

func TestAcknowledgeReturnsRedirectAndTransitionsToPending(t *testing.T) {
	writer := &recordingWriter{}
	svc, db := newTestAckService(t, writer)

	key := entities.Key{Type: entities.TypeJobApplication, ID: "abc123"}
	redirect, err := svc.Acknowledge(context.Background(), "staff-1", key, &entities.NotificationItem{
		Type: key.Type, ID: key.ID, Title: "Morgan Hale", Message: "Loan Officer",
	})
	require.NoError(t, err)
	require.Equal(t, "/dashboard/job-applications?id=abc123", redirect)
	require.Equal(t, []string{"job-application/abc123/pending"}, writer.snapshot())

	var ack models.Acknowledgement
	require.NoError(t, db.First(&ack).Error)
	require.Equal(t, "staff-1", ack.UserID)
	require.Equal(t, "job-application", ack.EntityType)
	require.Equal(t, models.AckOutcomeOK, ack.Outcome)
	require.Empty(t, ack.Error)
	require.NotEmpty(t, ack.Item, "the clicked item is kept for the audit trail")
}

func TestAcknowledgeFailureIsRecordedNotReturned(t *testing.T) {
	writer := &recordingWriter{err: errors.ErrUpstreamUnavailable}
	svc, db := newTestAckService(t, writer)

	redirect, err := svc.Acknowledge(context.Background(), "staff-1",
		entities.Key{Type: entities.TypeContact, ID: "c9"}, nil)
	require.NoError(t, err, "the redirect must not depend on the transition")
	require.Equal(t, "/dashboard/contacts?id=c9", redirect)

	var ack models.Acknowledgement
	require.NoError(t, db.First(&ack).Error)
	require.Equal(t, models.AckOutcomeFailed, ack.Outcome)
	require.Contains(t, ack.Error, "unreachable")
}

func TestAcknowledgeRejectsUnknownEntityType(t *testing.T) {
	writer := &recordingWriter{}
	svc, _ := newTestAckService(t, writer)

	_, err := svc.Acknowledge(context.Background(), "staff-1",
		entities.Key{Type: "escrow-ticket", ID: "x"}, nil)
	require.Error(t, err)
	require.Empty(t, writer.snapshot())
}

func TestAcknowledgeRejectsEmptyID(t *testing.T) {
	writer := &recordingWriter{}
	svc, _ := newTestAckService(t, writer)

	_, err := svc.Acknowledge(context.Background(), "staff-1",
		entities.Key{Type: entities.TypeContact, ID: "  "}, nil)
	require.Error(t, err)
	require.Empty(t, writer.snapshot())
}
