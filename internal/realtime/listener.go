package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/config"
)

// Listener turns PostgreSQL notifications raised by the schema's change
// triggers into hub publications.
type Listener struct {
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration
	pingEvery    time.Duration
	pub          Publisher
	log          *zap.Logger
}

func NewListener(dsn string, cfg config.RealtimeConfig, pub Publisher, log *zap.Logger) *Listener {
	return &Listener{
		dsn:          dsn,
		channel:      cfg.Channel,
		minReconnect: cfg.MinReconnectInterval,
		maxReconnect: cfg.MaxReconnectInterval,
		pingEvery:    90 * time.Second,
		pub:          pub,
		log:          log.With(zap.String("component", "pg_listener")),
	}
}

// Run blocks until ctx ends. pq reconnects on its own; every reconnect is
// followed by a resync publication because notifications sent while
// disconnected are lost.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			l.log.Warn("listener_connection_lost", zap.Error(err))
		case pq.ListenerEventReconnected:
			l.log.Info("listener_reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen on %s: %w", l.channel, err)
	}
	l.log.Info("listener_started", zap.String("channel", l.channel))

	ticker := time.NewTicker(l.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("listener_stopped")
			return nil
		case n := <-listener.Notify:
			if n == nil {
				l.pub.Publish(ctx, Change{Op: "RESYNC", Resync: true})
				continue
			}
			c, err := DecodeNotification(n.Extra)
			if err != nil {
				l.log.Warn("listener_bad_payload", zap.String("payload", n.Extra), zap.Error(err))
				continue
			}
			l.pub.Publish(ctx, c)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				l.log.Warn("listener_ping_failed", zap.Error(err))
			}
		}
	}
}

// DecodeNotification parses the JSON payload written by notify_table_change().
func DecodeNotification(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("decode notification: %w", err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("decode notification: missing table")
	}
	return c, nil
}
