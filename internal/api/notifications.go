package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/auth"
	"liveclass/internal/notification"
)

func (h *handler) notifications(c *gin.Context) {
	st, err := h.Notifications.Snapshot(c.Request.Context(), auth.CurrentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) createNotification(c *gin.Context) {
	var req notification.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.Notifications.Create(c.Request.Context(), auth.CurrentPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *handler) markNotificationRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) markAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), auth.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handler) deleteNotification(c *gin.Context) {
	if err := h.Notifications.Delete(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
