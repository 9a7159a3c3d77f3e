package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"liveclass/internal/auth"
	"liveclass/internal/realtime"
)

// snapshot is the frame pushed by refetching feeds.
type snapshot struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// refetchFeed serves a websocket feed that re-reads fetch whenever a change to
// table for the route's session arrives. Client frames are ignored.
func refetchFeed[T any](h *handler, c *gin.Context, name, table string, fetch func(ctx context.Context, sessionID string) (T, error)) {
	sessionID := c.Param("sessionID")
	if _, err := h.Sessions.Get(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}
	filter := realtime.Filter{Table: table, Column: "session_id", Value: sessionID}
	h.Feeds.Serve(c.Writer, c.Request, name, func(ctx context.Context, conn *realtime.Conn) error {
		go func() {
			for range conn.Inbox() {
			}
		}()
		return realtime.Refetch(ctx, h.Broker, filter,
			func(ctx context.Context) (T, error) { return fetch(ctx, sessionID) },
			func(v T) error { return conn.Send(snapshot{Type: name, Data: v}) },
		)
	})
}

func (h *handler) participantsStream(c *gin.Context) {
	refetchFeed(h, c, "participants", "session_participants", h.Sessions.ListActive)
}

func (h *handler) attendanceStream(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	if !p.CanManage() {
		respondError(c, p.Require(auth.RoleTeacher, auth.RoleAdmin))
		return
	}
	refetchFeed(h, c, "attendance", "attendance_records", h.Attendance.List)
}

func (h *handler) messagesStream(c *gin.Context) {
	refetchFeed(h, c, "messages", "session_messages", h.Interaction.Messages)
}

func (h *handler) handRaisesStream(c *gin.Context) {
	refetchFeed(h, c, "hand_raises", "hand_raises", h.Interaction.Pending)
}

func (h *handler) breakoutRoomsStream(c *gin.Context) {
	refetchFeed(h, c, "breakout_rooms", "breakout_rooms", h.Interaction.BreakoutRooms)
}

func (h *handler) notificationsStream(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	h.Feeds.Serve(c.Writer, c.Request, "notifications", func(ctx context.Context, conn *realtime.Conn) error {
		return h.Stream.Run(ctx, p, conn.Inbox(), conn.Send)
	})
}
