// Package api exposes the live classroom over HTTP and websocket feeds.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/httpmiddleware"
	"liveclass/internal/identity"
	"liveclass/internal/interaction"
	"liveclass/internal/notification"
	"liveclass/internal/realtime"
	"liveclass/internal/session"
)

// Identity is the sign-in and profile surface.
type Identity interface {
	SignIn(ctx context.Context, email, password string, required auth.Role) (identity.SignInResult, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Register(ctx context.Context, in identity.RegisterInput) (identity.Profile, error)
	Profile(ctx context.Context, userID string) (identity.Profile, error)
}

// Sessions is the session registry and membership surface.
type Sessions interface {
	GetOrCreateLive(ctx context.Context, courseID string) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	Complete(ctx context.Context, actor auth.Principal, id string) (session.Session, error)
	Join(ctx context.Context, actor auth.Principal, sessionID string) (session.Participant, error)
	Leave(ctx context.Context, sessionID, userID string) error
	ListActive(ctx context.Context, sessionID string) ([]session.ActiveParticipant, error)
	JoinCourse(ctx context.Context, actor auth.Principal, courseID string) (session.JoinResult, error)
}

// Attendance is the attendance marking surface.
type Attendance interface {
	Mark(ctx context.Context, actor auth.Principal, in attendance.MarkInput) (attendance.Record, error)
	MarkBulk(ctx context.Context, actor auth.Principal, sessionID string, entries []attendance.Entry) error
	List(ctx context.Context, sessionID string) ([]attendance.Record, error)
	Summary(ctx context.Context, sessionID string) (attendance.Summary, error)
}

// Notifications is the per-user notification surface.
type Notifications interface {
	Snapshot(ctx context.Context, userID string) (notification.State, error)
	MarkRead(ctx context.Context, actor auth.Principal, id string) error
	MarkAllRead(ctx context.Context, actor auth.Principal) (int64, error)
	Delete(ctx context.Context, actor auth.Principal, id string) error
	Create(ctx context.Context, actor auth.Principal, in notification.CreateInput) (notification.Notification, error)
}

// NotificationStream runs one subscriber's notification feed.
type NotificationStream interface {
	Run(ctx context.Context, actor auth.Principal, in <-chan []byte, send func(any) error) error
}

// Interaction is the chat, hand raise and breakout room surface.
type Interaction interface {
	Send(ctx context.Context, actor auth.Principal, sessionID, body string) (interaction.Message, error)
	Messages(ctx context.Context, sessionID string) ([]interaction.Message, error)
	Raise(ctx context.Context, actor auth.Principal, sessionID string) (interaction.HandRaise, error)
	Lower(ctx context.Context, actor auth.Principal, sessionID, userID string) (interaction.HandRaise, error)
	Pending(ctx context.Context, sessionID string) ([]interaction.HandRaise, error)
	CreateBreakoutRoom(ctx context.Context, actor auth.Principal, sessionID string, in interaction.BreakoutInput) (interaction.BreakoutRoom, error)
	BreakoutRooms(ctx context.Context, sessionID string) ([]interaction.BreakoutRoom, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the router.
type Deps struct {
	Identity      Identity
	Sessions      Sessions
	Attendance    Attendance
	Notifications Notifications
	Stream        NotificationStream
	Interaction   Interaction

	Broker  realtime.Broker
	Feeds   *realtime.Server
	Tokens  auth.Tokens
	Limiter *httpmiddleware.Limiter
	Health  map[string]HealthCheck

	Logger     *zap.Logger
	Version    string
	Started    time.Time
	Production bool
}

type handler struct {
	Deps
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Feeds == nil {
		d.Feeds = realtime.NewServer(d.Logger)
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	useJSONFieldNames()
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(httpmiddleware.Recovery(d.Logger))
	r.Use(httpmiddleware.RequestLogger(d.Logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders(d.Production))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	limit := func(c *gin.Context) { c.Next() }
	if d.Limiter != nil {
		limit = d.Limiter.Middleware()
	}

	v1 := r.Group("/v1")
	public := v1.Group("/auth", limit)
	public.POST("/sign-in", h.signIn)
	public.POST("/refresh", h.refresh)
	public.POST("/register", h.register)

	authed := v1.Group("", auth.Authenticate(d.Tokens), limit)
	authed.GET("/me", h.me)
	authed.GET("/system/info", h.systemInfo)
	authed.POST("/users", auth.RequireRole(auth.RoleAdmin), h.createUser)

	authed.POST("/courses/:courseID/join", h.joinCourse)
	authed.POST("/courses/:courseID/live-session", h.liveSession)

	sessions := authed.Group("/sessions/:sessionID")
	sessions.GET("", h.getSession)
	sessions.POST("/complete", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin), h.completeSession)
	sessions.POST("/join", h.join)
	sessions.POST("/leave", h.leave)
	sessions.GET("/participants", h.participants)
	sessions.GET("/participants/stream", h.participantsStream)

	staff := auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin)
	sessions.GET("/attendance", h.attendance)
	sessions.GET("/attendance/summary", staff, h.attendanceSummary)
	sessions.GET("/attendance/stream", h.attendanceStream)
	sessions.PUT("/attendance/:studentID", staff, h.markAttendance)
	sessions.POST("/attendance", staff, h.markBulkAttendance)

	sessions.GET("/messages", h.messages)
	sessions.POST("/messages", h.sendMessage)
	sessions.GET("/messages/stream", h.messagesStream)

	sessions.GET("/hand-raises", h.handRaises)
	sessions.POST("/hand-raises", h.raiseHand)
	sessions.POST("/hand-raises/lower", h.lowerHand)
	sessions.GET("/hand-raises/stream", h.handRaisesStream)

	sessions.GET("/breakout-rooms", h.breakoutRooms)
	sessions.POST("/breakout-rooms", staff, h.createBreakoutRoom)
	sessions.GET("/breakout-rooms/stream", h.breakoutRoomsStream)

	authed.GET("/notifications", h.notifications)
	authed.POST("/notifications", staff, h.createNotification)
	authed.GET("/notifications/stream", h.notificationsStream)
	authed.PUT("/notifications/read", h.markAllNotificationsRead)
	authed.POST("/notifications/:id/read", h.markNotificationRead)
	authed.DELETE("/notifications/:id", h.deleteNotification)

	return r
}
