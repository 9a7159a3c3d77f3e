package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/auth"
	"liveclass/internal/interaction"
)

func (h *handler) messages(c *gin.Context) {
	msgs, err := h.Interaction.Messages(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handler) sendMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.Interaction.Send(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handler) handRaises(c *gin.Context) {
	list, err := h.Interaction.Pending(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hand_raises": list})
}

func (h *handler) raiseHand(c *gin.Context) {
	raise, err := h.Interaction.Raise(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, raise)
}

func (h *handler) lowerHand(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	raise, err := h.Interaction.Lower(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raise)
}

func (h *handler) breakoutRooms(c *gin.Context) {
	rooms, err := h.Interaction.BreakoutRooms(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakout_rooms": rooms})
}

func (h *handler) createBreakoutRoom(c *gin.Context) {
	var req interaction.BreakoutInput
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.Interaction.CreateBreakoutRoom(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}
