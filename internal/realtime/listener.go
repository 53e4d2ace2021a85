package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// PGListener LISTENs on the channel the notify_portal_change trigger publishes to and
// forwards decoded events. It reconnects with exponential backoff until ctx ends.
type PGListener struct {
	databaseURL string
	channel     string
	logger      *zap.Logger
}

func NewPGListener(databaseURL, channel string, logger *zap.Logger) *PGListener {
	return &PGListener{
		databaseURL: databaseURL,
		channel:     channel,
		logger:      logger.Named("pglisten"),
	}
}

func (l *PGListener) Run(ctx context.Context, pub Publisher) error {
	backoff := minBackoff
	for {
		started := time.Now()
		err := l.listen(ctx, pub)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		l.logger.Warn("listen connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *PGListener) listen(ctx context.Context, pub Publisher) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("listening", zap.String("channel", l.channel))
	pub.Publish(Event{Kind: KindSubscribed, At: time.Now()})

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := Decode([]byte(notification.Payload))
		if err != nil {
			l.logger.Warn("dropping malformed notification", zap.Error(err))
			continue
		}
		pub.Publish(ev)
	}
}
