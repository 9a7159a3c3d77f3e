package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/attendance"
	"liveclass/internal/auth"
)

func (h *handler) attendance(c *gin.Context) {
	list, err := h.Attendance.List(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	// Students only see their own record.
	if p := auth.CurrentPrincipal(c); !p.CanManage() {
		own := []attendance.Record{}
		for _, rec := range list {
			if rec.StudentID == p.UserID {
				own = append(own, rec)
			}
		}
		list = own
	}
	c.JSON(http.StatusOK, gin.H{"records": list})
}

func (h *handler) attendanceSummary(c *gin.Context) {
	sum, err := h.Attendance.Summary(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handler) markAttendance(c *gin.Context) {
	var req struct {
		Status attendance.Status `json:"status" binding:"required"`
		Notes  string            `json:"notes" binding:"max=1000"`
	}
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.Attendance.Mark(c.Request.Context(), auth.CurrentPrincipal(c), attendance.MarkInput{
		SessionID: c.Param("sessionID"),
		StudentID: c.Param("studentID"),
		Status:    req.Status,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type markBulkRequest struct {
	Records []attendance.Entry `json:"records" binding:"required,min=1,max=1000,dive"`
}

func (h *handler) markBulkAttendance(c *gin.Context) {
	var req markBulkRequest
	if !bindJSON(c, &req) {
		return
	}
	sessionID := c.Param("sessionID")
	if err := h.Attendance.MarkBulk(c.Request.Context(), auth.CurrentPrincipal(c), sessionID, req.Records); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "marked": len(req.Records)})
}
