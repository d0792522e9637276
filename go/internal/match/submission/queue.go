package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// QueueKey is the store key holding the pending score list.
const QueueKey = "pending_score_queue"

// DefaultQueueLimit bounds the pending list; the oldest entry is dropped first.
const DefaultQueueLimit = 100

// Store is the durable key-value contract the queue persists through.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Remove(ctx context.Context, key string) error
}

// PendingQueue keeps undelivered score submissions as a JSON list under QueueKey.
type PendingQueue struct {
	store Store
	limit int
	mu    sync.Mutex
}

// NewPendingQueue creates a queue over store. A non-positive limit uses DefaultQueueLimit.
func NewPendingQueue(store Store, limit int) *PendingQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &PendingQueue{store: store, limit: limit}
}

// Append adds entry at the tail, dropping the oldest entries past the limit.
func (q *PendingQueue) Append(ctx context.Context, entry models.PendingScoreEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if over := len(entries) - q.limit; over > 0 {
		log.Warn().
			Int("dropped", over).
			Int("limit", q.limit).
			Msg("pending score queue full, dropping oldest entries")
		entries = entries[over:]
	}
	return q.save(ctx, entries)
}

// List returns the queued entries, oldest first.
func (q *PendingQueue) List(ctx context.Context) ([]models.PendingScoreEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Remove deletes the entry with id. Unknown ids are ignored.
func (q *PendingQueue) Remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return q.save(ctx, kept)
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (q *PendingQueue) load(ctx context.Context) ([]models.PendingScoreEntry, error) {
	raw, ok, err := q.store.Get(ctx, QueueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var entries []models.PendingScoreEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode pending queue: %w", err)
	}
	return entries, nil
}

func (q *PendingQueue) save(ctx context.Context, entries []models.PendingScoreEntry) error {
	if len(entries) == 0 {
		if err := q.store.Remove(ctx, QueueKey); err != nil {
			return fmt.Errorf("failed to clear pending queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode pending queue: %w", err)
	}
	if err := q.store.Put(ctx, QueueKey, raw); err != nil {
		return fmt.Errorf("failed to write pending queue: %w", err)
	}
	return nil
}
