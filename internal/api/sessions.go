package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/auth"
	"liveclass/internal/session"
)

func (h *handler) joinCourse(c *gin.Context) {
	res, err := h.Sessions.JoinCourse(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("courseID"))
	if err != nil {
		respondJoinError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// respondJoinError tells an unenrolled student to enroll instead of reporting
// a bare not found.
func respondJoinError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotEnrolled) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":  "you are not enrolled in this course",
			"kind":   "not_enrolled",
			"action": "enroll",
		})
		return
	}
	respondError(c, err)
}

func (h *handler) liveSession(c *gin.Context) {
	s, err := h.Sessions.GetOrCreateLive(c.Request.Context(), c.Param("courseID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) getSession(c *gin.Context) {
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) completeSession(c *gin.Context) {
	s, err := h.Sessions.Complete(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) join(c *gin.Context) {
	p, err := h.Sessions.Join(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("sessionID"))
	if err != nil {
		respondJoinError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) leave(c *gin.Context) {
	if err := h.Sessions.Leave(c.Request.Context(), c.Param("sessionID"), auth.CurrentPrincipal(c).UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) participants(c *gin.Context) {
	list, err := h.Sessions.ListActive(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": list})
}
