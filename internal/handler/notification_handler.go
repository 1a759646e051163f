package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

type notificationInbox interface {
	List(ctx context.Context, claims *models.JWTClaims, status string, page, pageSize int) ([]models.NotificationDetail, *models.Pagination, error)
	MarkRead(ctx context.Context, claims *models.JWTClaims, req dto.MarkReadRequest) (*dto.MarkReadResult, error)
	MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*dto.MarkReadResult, error)
	UnreadCount(ctx context.Context, claims *models.JWTClaims) (*dto.UnreadCount, error)
}

type socketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

// NotificationHandler exposes the in-app inbox and its live stream.
type NotificationHandler struct {
	inbox  notificationInbox
	hub    socketServer
	logger *zap.Logger
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(inbox notificationInbox, hub socketServer, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{inbox: inbox, hub: hub, logger: logger}
}

// List godoc
// @Summary List notifications of the caller
// @Tags Notifications
// @Produce json
// @Param filter query string false "unread, read or all"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	page, size := pageParams(c)

	items, pagination, err := h.inbox.List(c.Request.Context(), claims, c.Query("filter"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	count, err := h.inbox.UnreadCount(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, count, nil)
}

// MarkRead godoc
// @Summary Mark notifications as read
// @Description Ids that are unknown, already read or owned by someone else are ignored.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.MarkReadRequest true "Notification ids"
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	result, err := h.inbox.MarkRead(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkAllRead godoc
// @Summary Mark every notification as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-all-read [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	result, err := h.inbox.MarkAllRead(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stream godoc
// @Summary Subscribe to live notifications
// @Description Upgrades to a websocket. The access token may be passed as the token query parameter.
// @Tags Notifications
// @Param token query string false "Access token"
// @Success 101
// @Router /notifications/ws [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	// The upgrader has already answered the client when ServeWS fails.
	if err := h.hub.ServeWS(c.Writer, c.Request, claims.UserID); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}
