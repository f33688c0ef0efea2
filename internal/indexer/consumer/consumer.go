// Package consumer applies content mutations published on Kafka to the
// search index, so write-side services never call the index directly.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goleaf/newsblog-search/internal/content"
	"github.com/goleaf/newsblog-search/internal/indexer"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/kafka"
)

// Content mutation actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ContentEvent announces that one post, tag or category changed.
type ContentEvent struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	ID     int64  `json:"id"`
}

// Index is the subset of indexer.Store the consumer drives.
type Index interface {
	Update(ctx context.Context, rec content.Record) error
	Remove(ctx context.Context, id int64, t indexer.Type) error
}

// Invalidator drops cached search results after the index changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// IndexConsumer wraps a Kafka consumer to drive incremental indexing.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that re-reads the changed
// record from src and updates or removes its index entry. A record that no
// longer exists is removed. After a successful change the result cache is
// invalidated when inv is non-nil; a backend that cannot invalidate by
// pattern leaves results stale until their TTL expires.
func HandleMessage(idx Index, src content.Store, inv Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ContentEvent](value)
		if err != nil {
			logger.Error("failed to decode content event", "error", err, "key", string(key))
			return nil
		}
		t, err := indexer.ParseType(event.Type)
		if err != nil {
			logger.Error("content event for unknown index", "type", event.Type, "id", event.ID)
			return nil
		}

		if err := apply(ctx, idx, src, t, event); err != nil {
			return fmt.Errorf("applying %s %s %d: %w", event.Action, t, event.ID, err)
		}
		logger.Info("content event applied", "action", event.Action, "type", t, "id", event.ID)

		if inv != nil {
			if err := inv.Invalidate(ctx); err != nil {
				if errors.Is(err, apperrors.ErrCacheUnsupported) {
					logger.Debug("result cache cannot be invalidated by pattern; relying on ttl")
				} else {
					logger.Warn("result cache invalidation failed", "error", err)
				}
			}
		}
		return nil
	}
}

func apply(ctx context.Context, idx Index, src content.Store, t indexer.Type, event ContentEvent) error {
	if event.Action == ActionDeleted {
		return idx.Remove(ctx, event.ID, t)
	}

	rec, err := fetch(ctx, src, t, event.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return idx.Remove(ctx, event.ID, t)
	}
	if err != nil {
		return err
	}
	return idx.Update(ctx, rec)
}

func fetch(ctx context.Context, src content.Store, t indexer.Type, id int64) (content.Record, error) {
	switch t {
	case indexer.Posts:
		return src.Post(ctx, id)
	case indexer.Tags:
		return src.Tag(ctx, id)
	default:
		return src.Category(ctx, id)
	}
}
