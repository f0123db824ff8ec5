package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// Enqueue persists a queue item and returns its assigned id. The row is
// written before any network attempt is made, so a crash between enqueue
// and delivery loses nothing.
func (s *Store) Enqueue(ctx context.Context, itemType string, payload json.RawMessage) (int64, error) {
	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO sync_queue (item_type, payload, enqueued_at, attempts, next_attempt_at, status)
	VALUES (?, ?, ?, 0, ?, ?)`,
		itemType, string(payload),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
		model.QueuePending)
	if err != nil {
		if isFullError(err) {
			return 0, fmt.Errorf("enqueue %s: %w", itemType, ErrQuotaExceeded)
		}
		return 0, fmt.Errorf("failed to enqueue %s item: %w", itemType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue item id: %w", err)
	}
	return id, nil
}

// PendingItems returns the items due for delivery at the given time,
// oldest first. This is the snapshot a single drain invocation works on.
func (s *Store) PendingItems(ctx context.Context, now time.Time) ([]model.QueueItem, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, item_type, payload, enqueued_at, attempts, next_attempt_at, status, last_error
	FROM sync_queue
	WHERE status = ? AND next_attempt_at <= ?
	ORDER BY id ASC`,
		model.QueuePending, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// FailedItems returns items evicted as failed-permanent, for user-visible
// reporting and manual resolution.
func (s *Store) FailedItems(ctx context.Context) ([]model.QueueItem, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, item_type, payload, enqueued_at, attempts, next_attempt_at, status, last_error
	FROM sync_queue
	WHERE status = ?
	ORDER BY id ASC`,
		model.QueueFailedPermanent)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// MarkProcessing transitions an item to processing for the duration of a
// delivery attempt.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	return s.setItemStatus(ctx, id, model.QueueProcessing, "")
}

// ResetProcessing returns rows stuck in processing to pending and reports
// how many were recovered. A crash between claiming an item and recording
// its outcome leaves the row in processing, a state no reader selects, so
// it must be recovered before the next drain.
func (s *Store) ResetProcessing(ctx context.Context) (int, error) {
	res, err := s.conn.ExecContext(ctx, `
	UPDATE sync_queue SET status = ? WHERE status = ?`,
		model.QueuePending, model.QueueProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// MarkRetry returns an item to pending with an incremented attempt count
// and the next attempt time computed by the queue's backoff schedule.
func (s *Store) MarkRetry(ctx context.Context, id int64, attempts int, nextAttempt time.Time, lastError string) error {
	_, err := s.conn.ExecContext(ctx, `
	UPDATE sync_queue
	SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
	WHERE id = ?`,
		model.QueuePending, attempts, nextAttempt.UTC().Format(time.RFC3339), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark item %d for retry: %w", id, err)
	}
	return nil
}

// MarkFailedPermanent evicts an item from further drains. The row is kept
// so the failure stays visible until resolved.
func (s *Store) MarkFailedPermanent(ctx context.Context, id int64, lastError string) error {
	return s.setItemStatus(ctx, id, model.QueueFailedPermanent, lastError)
}

// DeleteItem removes a delivered item. Deleting an absent item is a no-op.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item %d: %w", id, err)
	}
	return nil
}

// QueueLength returns the number of pending items.
func (s *Store) QueueLength(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE status = ?", model.QueuePending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return count, nil
}

func (s *Store) setItemStatus(ctx context.Context, id int64, status, lastError string) error {
	_, err := s.conn.ExecContext(ctx, `
	UPDATE sync_queue SET status = ?, last_error = ? WHERE id = ?`,
		status, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to set queue item %d status: %w", id, err)
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]model.QueueItem, error) {
	var items []model.QueueItem
	for rows.Next() {
		var (
			item               model.QueueItem
			payload            string
			enqueuedAt, nextAt string
			lastError          sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Type, &payload, &enqueuedAt,
			&item.Attempts, &nextAt, &item.Status, &lastError); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		item.Payload = json.RawMessage(payload)
		if t, err := time.Parse(time.RFC3339, enqueuedAt); err == nil {
			item.EnqueuedAt = t
		}
		if t, err := time.Parse(time.RFC3339, nextAt); err == nil {
			item.NextAttemptAt = t
		}
		if lastError.Valid {
			item.LastError = lastError.String
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}
	return items, nil
}
