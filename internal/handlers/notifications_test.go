package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrealty/backoffice/internal/aggregator"
	"github.com/kestrelrealty/backoffice/internal/database/testutil"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/middleware"
	"github.com/kestrelrealty/backoffice/internal/services"
)

type staticSource struct {
	feed *aggregator.Feed
}

func (s *staticSource) Snapshot() *aggregator.Feed { return s.feed }

type recordingWriter struct {
	mu    sync.Mutex
	calls []string
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

func testFeed() *aggregator.Feed {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return &aggregator.Feed{
		Total:  5,
		Counts: map[entities.Type]int{entities.TypeContact: 5},
		Recent: []entities.NotificationItem{
			{Type: entities.TypeContact, ID: "c1", Title: "Dana Reeve", Message: "Refinance question", Timestamp: base, Route: "contacts"},
		},
		GeneratedAt: base,
	}
}

type notificationFixture struct {
	router *gin.Engine
	writer *recordingWriter
}

// asUser injects the authenticated user the way the auth middleware would.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.CtxUserIDKey, userID)
		}
		c.Next()
	}
}

func newNotificationFixture(t *testing.T, feed *aggregator.Feed, userID string) *notificationFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	registry := entities.NewRegistry()
	writer := &recordingWriter{}

	feedSvc, err := services.NewFeedService(db, &staticSource{feed: feed}, registry)
	require.NoError(t, err)
	ackSvc, err := services.NewAckService(db, writer, registry)
	require.NoError(t, err)

	h := NewNotificationHandler(feedSvc, ackSvc, registry, nil, nil)

	r := gin.New()
	grp := r.Group("/api/notifications", asUser(userID))
	grp.GET("", h.Feed)
	grp.GET("/counts", h.Counts)
	grp.POST("/ack", h.Acknowledge)
	grp.POST("/read-all", h.MarkAllRead)
	grp.POST("/:type/:id/read", h.MarkRead)
	grp.POST("/:type/:id/unread", h.MarkUnread)

	return &notificationFixture{router: r, writer: writer}
}

func (f *notificationFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestFeedEndpointReturnsSnapshot(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	require.EqualValues(t, 5, data["total"])
	require.Len(t, data["recent"], 1)
}

func TestFeedEndpointRequiresAuth(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "")

	w := f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCountsEndpointOmitsItems(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodGet, "/api/notifications/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	require.EqualValues(t, 5, data["total"])
	require.NotContains(t, data, "recent")
}

func TestAcknowledgeReturnsRedirectImmediately(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/ack", gin.H{"type": "contact", "id": "c1"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	require.Equal(t, "/dashboard/contacts?id=c1", data["redirect"])

	// The transition happens off the request path.
	require.Eventually(t, func() bool {
		calls := f.writer.snapshot()
		return len(calls) == 1 && calls[0] == "contact/c1/pending"
	}, time.Second, 10*time.Millisecond)
}

func TestAcknowledgeRejectsUnknownType(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/ack", gin.H{"type": "escrow-ticket", "id": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "UNKNOWN_ENTITY_TYPE")
}

func TestAcknowledgeValidatesPayload(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/ack", gin.H{"type": "contact"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "id is required")
}

func TestMarkReadRoundTrip(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/contact/c1/read", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/notifications", nil)
	data := decodeData(t, w)
	recent := data["recent"].([]any)
	item := recent[0].(map[string]any)
	require.Equal(t, true, item["is_read"])

	w = f.do(t, http.MethodPost, "/api/notifications/contact/c1/unread", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/notifications", nil)
	data = decodeData(t, w)
	item = data["recent"].([]any)[0].(map[string]any)
	require.Equal(t, false, item["is_read"])
}

func TestMarkAllReadEndpoint(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/notifications", nil)
	data := decodeData(t, w)
	item := data["recent"].([]any)[0].(map[string]any)
	require.Equal(t, true, item["is_read"])
}

func TestMarkReadRejectsUnknownType(t *testing.T) {
	f := newNotificationFixture(t, testFeed(), "staff-1")

	w := f.do(t, http.MethodPost, "/api/notifications/escrow-ticket/c1/read", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedBeforeFirstPollIsEmptyNotError(t *testing.T) {
	f := newNotificationFixture(t, nil, "staff-1")

	w := f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	require.EqualValues(t, 0, data["total"])
}
