package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/metrics"
)

const (
	seenCapacity = 10000
	seenTTL      = 24 * time.Hour
)

// Appender is the subset of records.Store the mirror writes to.
type Appender interface {
	EnsureInitialized(ctx context.Context) error
	Append(ctx context.Context, r core.Record) error
}

// Consumer delivers RecordAppended messages to a handler until ctx ends.
type Consumer interface {
	ConsumeRecordAppended(ctx context.Context, handler amqp.Handler) error
}

// MirrorWorker copies records announced on the queue into a secondary store.
// Message ids seen recently are skipped so redeliveries do not duplicate rows.
type MirrorWorker struct {
	mirror  Appender
	metrics metrics.Collector
	seen    *cache.LRUCache[struct{}]
}

func NewMirrorWorker(mirror Appender, m metrics.Collector) *MirrorWorker {
	if m == nil {
		m = metrics.Nop{}
	}
	return &MirrorWorker{
		mirror:  mirror,
		metrics: m,
		seen:    cache.NewLRUCache[struct{}](seenCapacity, seenTTL),
	}
}

// Run prepares the mirror and consumes until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.mirror.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("initialize mirror: %w", err)
	}
	slog.InfoContext(ctx, "Mirror worker started", "component", "worker")
	return consumer.ConsumeRecordAppended(ctx, w.HandleRecordAppended)
}

// HandleRecordAppended appends the carried record to the mirror.
func (w *MirrorWorker) HandleRecordAppended(ctx context.Context, msg *amqp.RecordAppendedMessage) error {
	if _, dup := w.seen.Get(msg.ID); dup {
		slog.DebugContext(ctx, "Skipping already mirrored message", "component", "worker", "message_id", msg.ID)
		w.metrics.RecordMirror("duplicate")
		return nil
	}

	r, err := msg.Record()
	if err != nil {
		w.metrics.RecordMirror("invalid")
		return fmt.Errorf("decode record: %w", err)
	}

	if err := w.mirror.Append(ctx, r); err != nil {
		w.metrics.RecordMirror("failed")
		return fmt.Errorf("append to mirror: %w", err)
	}

	w.seen.Set(msg.ID, struct{}{})
	w.metrics.RecordMirror("mirrored")
	slog.InfoContext(ctx, "Record mirrored",
		"component", "worker",
		"message_id", msg.ID,
		"date", msg.Date,
		"category", msg.Category)
	return nil
}
