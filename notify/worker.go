package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultBatchSize   = 10
	defaultMaxAttempts = 5
)

// Message is one drained outbox row.
type Message struct {
	ID      string
	Topic   string
	Payload map[string]any
}

// Handler consumes one outbox message. A non-nil error leaves the message
// pending with its attempts counter bumped; after too many failures the
// message is parked as dead.
type Handler func(ctx context.Context, msg Message) error

// Worker drains the transactional outbox. Claims run under
// FOR UPDATE SKIP LOCKED so multiple workers never double-deliver, and the
// claim commits together with the status flip.
type Worker struct {
	pool        *pgxpool.Pool
	handler     Handler
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *log.Logger
}

func NewWorker(pool *pgxpool.Pool, handler Handler, interval time.Duration, logger *log.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		pool:        pool,
		handler:     handler,
		interval:    interval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger.Printf("outbox worker: %v", err)
			}
		}
	}
}

// Drain processes one batch and reports how many messages were handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT id, topic, payload
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
FOR UPDATE SKIP LOCKED
LIMIT $1
`, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("notify: claim outbox batch: %w", err)
	}

	msgs := make([]Message, 0, w.batchSize)
	for rows.Next() {
		var (
			msg Message
			raw []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Topic, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		if err := json.Unmarshal(raw, &msg.Payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: decode payload %s: %w", msg.ID, err)
		}
		msgs = append(msgs, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("notify: iterate outbox: %w", err)
	}

	handled := 0
	for _, msg := range msgs {
		if err := w.handler(ctx, msg); err != nil {
			w.logger.Printf("outbox worker: handle %s (%s): %v", msg.ID, msg.Topic, err)
			if _, err := tx.Exec(ctx, `
UPDATE outbox
SET attempts = attempts + 1,
    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE status END,
    last_attempt = now()
WHERE id = $1
`, msg.ID, w.maxAttempts); err != nil {
				return handled, fmt.Errorf("notify: record failure %s: %w", msg.ID, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
UPDATE outbox
SET status = 'processed', attempts = attempts + 1, last_attempt = now()
WHERE id = $1
`, msg.ID); err != nil {
			return handled, fmt.Errorf("notify: mark processed %s: %w", msg.ID, err)
		}
		handled++
	}

	if err := tx.Commit(ctx); err != nil {
		return handled, fmt.Errorf("notify: commit drain: %w", err)
	}
	return handled, nil
}
