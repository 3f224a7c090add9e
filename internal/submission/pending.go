package submission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-lifeline/internal/kvstore"
	"github.com/mr1hm/go-lifeline/internal/models"
)

const pendingKey = "pending_alerts"

// PendingQueue is a bounded FIFO of undelivered alerts persisted under one
// key. When full, the oldest entry is dropped.
type PendingQueue struct {
	store    kvstore.Store
	capacity int
}

func NewPendingQueue(store kvstore.Store, capacity int) *PendingQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &PendingQueue{store: store, capacity: capacity}
}

func (q *PendingQueue) List(ctx context.Context) ([]models.PendingAlert, error) {
	var items []models.PendingAlert
	if _, err := q.store.Get(ctx, pendingKey, &items); err != nil {
		return nil, fmt.Errorf("error loading pending alerts: %w", err)
	}
	return items, nil
}

// Enqueue adds pa, replacing an entry with the same client id in place. It
// returns the entry evicted to make room, if any.
func (q *PendingQueue) Enqueue(ctx context.Context, pa models.PendingAlert) (*models.PendingAlert, error) {
	items, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range items {
		if items[i].Alert.ClientID == pa.Alert.ClientID {
			items[i] = pa
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, pa)
	}

	var dropped *models.PendingAlert
	if len(items) > q.capacity {
		d := items[0]
		dropped = &d
		items = items[len(items)-q.capacity:]
		slog.Warn("pending queue full, dropping oldest alert",
			"client_id", d.Alert.ClientID, "queued_at", d.QueuedAt, "capacity", q.capacity)
	}

	if err := q.store.Set(ctx, pendingKey, items); err != nil {
		return nil, fmt.Errorf("error saving pending alerts: %w", err)
	}
	return dropped, nil
}

func (q *PendingQueue) Remove(ctx context.Context, clientID string) error {
	items, err := q.List(ctx)
	if err != nil {
		return err
	}

	kept := items[:0]
	for _, it := range items {
		if it.Alert.ClientID != clientID {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return q.store.Delete(ctx, pendingKey)
	}
	return q.store.Set(ctx, pendingKey, kept)
}
