package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/kestrelrealty/backoffice/internal/auth"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/middleware"
	"github.com/kestrelrealty/backoffice/internal/realtime"
	"github.com/kestrelrealty/backoffice/internal/services"
	"github.com/kestrelrealty/backoffice/pkg/errors"
	"github.com/kestrelrealty/backoffice/pkg/response"
)

// NotificationHandler exposes the aggregated feed and read-state endpoints.
type NotificationHandler struct {
	feed     *services.FeedService
	ack      *services.AckService
	registry *entities.Registry
	hub      *realtime.Hub
	jwt      *iauth.JWTService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(feed *services.FeedService, ack *services.AckService, registry *entities.Registry, hub *realtime.Hub, jwt *iauth.JWTService) *NotificationHandler {
	return &NotificationHandler{
		feed:     feed,
		ack:      ack,
		registry: registry,
		hub:      hub,
		jwt:      jwt,
	}
}

// Feed returns the latest aggregated snapshot with per-user read flags.
func (h *NotificationHandler) Feed(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	feed, err := h.feed.Current(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, feed)
}

// Counts returns just the badge numbers: the overall total plus the per-type
// breakdown, without the recent items.
func (h *NotificationHandler) Counts(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	feed, err := h.feed.Current(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"total":        feed.Total,
		"counts":       feed.Counts,
		"generated_at": feed.GeneratedAt,
	})
}

// Acknowledge handles a click on a feed item: it kicks off the background
// status transition and hands back the dashboard page to navigate to.
func (h *NotificationHandler) Acknowledge(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Type string `json:"type" validate:"required"`
		ID   string `json:"id" validate:"required"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	d, err := h.registry.Parse(payload.Type)
	if err != nil {
		response.Error(c, errors.ErrUnknownEntity)
		return
	}

	key := entities.Key{Type: d.Type, ID: payload.ID}
	item := h.findItem(c, userID, key)

	redirect, err := h.ack.Acknowledge(requestContext(c), userID, key, item)
	if err != nil {
		response.Error(c, errors.NewBadRequest(err.Error()))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"redirect": redirect})
}

// findItem looks the clicked item up in the current snapshot so the
// acknowledgement audit row can keep what the staff member actually saw.
// A miss is fine; the item may have rotated out since the click.
func (h *NotificationHandler) findItem(c *gin.Context, userID string, key entities.Key) *entities.NotificationItem {
	feed, err := h.feed.Current(requestContext(c), userID)
	if err != nil {
		return nil
	}
	for i := range feed.Recent {
		if feed.Recent[i].Key() == key {
			return &feed.Recent[i]
		}
	}
	return nil
}

// MarkRead flags one item as seen by the current staff member.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread clears the seen flag for one item.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	d, err := h.registry.Parse(c.Param("type"))
	if err != nil {
		response.Error(c, errors.ErrUnknownEntity)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.ErrBadRequest)
		return
	}

	key := entities.Key{Type: d.Type, ID: id}
	if read {
		err = h.feed.MarkRead(requestContext(c), userID, key)
	} else {
		err = h.feed.MarkUnread(requestContext(c), userID, key)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"read": read})
}

// MarkAllRead flags every item in the current snapshot as seen.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.feed.MarkAllRead(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// Stream upgrades the connection to a WebSocket that pushes feed updates.
// Browsers cannot set headers on WebSocket dials, so the token may arrive
// as a query parameter instead.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}

	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.hub.Serve(claims.UserID, c.Writer, c.Request)
}
