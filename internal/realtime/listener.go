package realtime

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Channel is the Postgres NOTIFY channel the row triggers publish on.
const Channel = "liveclass_changes"

// Listener bridges Postgres LISTEN/NOTIFY into a Broker.
type Listener struct {
	connString string
	broker     Broker
	logger     *zap.Logger
	backoff    time.Duration
}

// NewListener creates a listener that reconnects with the given backoff.
func NewListener(connString string, broker Broker, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{connString: connString, broker: broker, logger: logger, backoff: 2 * time.Second}
}

// Run blocks until ctx ends, reconnecting whenever the connection drops.
// Events emitted while disconnected are lost; feeds resync on their next event.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change listener disconnected", zap.Error(err), zap.Duration("retry_in", l.backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	l.logger.Info("listening for row changes", zap.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.forward(ctx, []byte(n.Payload))
	}
}

func (l *Listener) forward(ctx context.Context, payload []byte) {
	c, err := ParseChange(payload)
	if err != nil {
		l.logger.Warn("dropping malformed change", zap.Error(err))
		return
	}
	if err := l.broker.Publish(ctx, c); err != nil {
		l.logger.Error("publish change failed", zap.Error(err), zap.String("table", c.Table))
	}
}
