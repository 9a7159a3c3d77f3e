package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveclass/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// Conn is a websocket feed connection. Sends are serialised; inbound client
// messages are delivered on Inbox.
type Conn struct {
	ws    *websocket.Conn
	mu    sync.Mutex
	inbox chan []byte
}

// Send writes v as a JSON frame.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// Inbox yields raw client frames until the client disconnects.
func (c *Conn) Inbox() <-chan []byte { return c.inbox }

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Server upgrades HTTP requests into feed connections.
type Server struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer builds a feed server. Origin checks are left to the CORS layer.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve upgrades the request and runs feed until it returns or the client goes
// away. The context handed to feed is cancelled on disconnect, which is what
// tears down the feed's broker subscription.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, name string, feed func(ctx context.Context, conn *Conn) error) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("feed", name), zap.Error(err))
		return
	}
	defer ws.Close()

	gauge := metrics.StreamClients.WithLabelValues(name)
	gauge.Inc()
	defer gauge.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &Conn{ws: ws, inbox: make(chan []byte, 16)}

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer cancel()
		defer close(conn.inbox)
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case conn.inbox <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	if err := feed(ctx, conn); err != nil && ctx.Err() == nil {
		s.logger.Warn("feed ended with error", zap.String("feed", name), zap.Error(err))
		conn.mu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed error"),
			time.Now().Add(writeWait))
		conn.mu.Unlock()
	}
}
