package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listener holds a dedicated LISTEN connection on GlobalChannel and
// dispatches each NOTIFY to a handler, letting any replica observe events
// persisted by whichever pod is actually driving a session — grounded on
// the teacher's NotifyListener, simplified to storyforge's single shared
// channel (no per-session channel bookkeeping or LISTEN/UNLISTEN
// generation tracking, since nothing here ever unsubscribes from a
// channel mid-run).
type Listener struct {
	connString string
	running    atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewListener constructs a Listener that will connect using connString, a
// standalone DSN separate from the pgxpool used for everything else (LISTEN
// requires a dedicated, long-lived connection).
func NewListener(connString string) *Listener {
	return &Listener{connString: connString}
}

// Start opens the dedicated connection, issues LISTEN, and runs the receive
// loop in a background goroutine until Stop is called or ctx is cancelled.
// handler is invoked with the decoded payload for every NOTIFY received;
// a handler that panics or blocks indefinitely will stall delivery, so
// callers should keep it fast and non-blocking.
func (l *Listener) Start(ctx context.Context, handler func(Record)) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connecting for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+GlobalChannel); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("issuing LISTEN: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running.Store(true)

	go func() {
		defer close(l.done)
		defer func() { _ = conn.Close(context.Background()) }()
		l.receiveLoop(loopCtx, conn, handler)
	}()
	return nil
}

// Stop cancels the receive loop and waits for the connection to close.
func (l *Listener) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

func (l *Listener) receiveLoop(ctx context.Context, conn *pgx.Conn, handler func(Record)) {
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("waiting for notification", "error", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		var envelope map[string]any
		if err := json.Unmarshal([]byte(notification.Payload), &envelope); err != nil {
			slog.Warn("decoding notify payload", "error", err)
			continue
		}
		handler(recordFromEnvelope(envelope))
	}
}

func recordFromEnvelope(envelope map[string]any) Record {
	r := Record{Payload: envelope, CreatedAt: time.Now().UTC()}
	if t, ok := envelope["type"].(string); ok {
		r.EventType = t
	}
	if sid, ok := envelope["session_id"].(string); ok {
		r.SessionID = sid
	}
	if id, ok := envelope["db_event_id"].(float64); ok {
		r.ID = int64(id)
	}
	return r
}
