package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/metrics"
	"fintrack/internal/records"
)

// Publisher announces appended records to downstream consumers.
type Publisher interface {
	PublishRecordAppended(ctx context.Context, r core.Record) error
}

// LedgerService orchestrates record entry and range queries over one store.
// Query results are cached per range and must be treated as read-only.
type LedgerService struct {
	store     records.Store
	backend   string
	publisher Publisher
	cache     *cache.LRUCache[ledger.Result]
	metrics   metrics.Collector
}

type Option func(*LedgerService)

// WithPublisher enables RecordAppended events after each successful append.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithQueryCache caches query results for ttl, keeping at most size ranges.
func WithQueryCache(size int, ttl time.Duration) Option {
	return func(s *LedgerService) {
		if size > 0 && ttl > 0 {
			s.cache = cache.NewLRUCache[ledger.Result](size, ttl)
		}
	}
}

// WithMetrics records operation metrics labelled with the backend name.
func WithMetrics(m metrics.Collector, backend string) Option {
	return func(s *LedgerService) {
		if m != nil {
			s.metrics = m
		}
		s.backend = backend
	}
}

func NewLedgerService(store records.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:   store,
		backend: "unknown",
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the query cache for periodic cleanup; nil when disabled.
func (s *LedgerService) Cache() *cache.LRUCache[ledger.Result] {
	return s.cache
}

// Init makes sure the store exists with its header.
func (s *LedgerService) Init(ctx context.Context) error {
	if err := s.store.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	return nil
}

// AddRecord validates and appends r. Publishing is best effort: a failed
// publish is logged and never fails the add.
func (s *LedgerService) AddRecord(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	start := time.Now()
	err := s.store.Append(ctx, r)
	s.metrics.RecordAppend(s.backend, err == nil, time.Since(start))
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	if s.cache != nil {
		s.cache.Purge()
	}

	slog.InfoContext(ctx, "Record added",
		"component", "ledger",
		"date", r.Date.String(),
		"category", r.Category.String(),
		"amount", r.Amount.String())

	if s.publisher != nil {
		perr := s.publisher.PublishRecordAppended(ctx, r)
		s.metrics.RecordPublish(perr == nil)
		if perr != nil {
			slog.ErrorContext(ctx, "Failed to publish record appended event",
				"component", "ledger",
				"error", perr)
		}
	}
	return nil
}

// Records loads the full store in append order.
func (s *LedgerService) Records(ctx context.Context) ([]core.Record, error) {
	start := time.Now()
	recs, err := s.store.LoadAll(ctx)
	s.metrics.RecordLoad(s.backend, err == nil, len(recs), time.Since(start))
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Query returns the filtered view, totals and aligned series for [start, end].
func (s *LedgerService) Query(ctx context.Context, start, end core.Date) (ledger.Result, error) {
	rng, err := ledger.NewRange(start, end)
	if err != nil {
		return ledger.Result{}, err
	}
	return s.QueryRange(ctx, rng)
}

// QueryText parses both bounds with the strict date format before querying.
func (s *LedgerService) QueryText(ctx context.Context, start, end string) (ledger.Result, error) {
	rng, err := ledger.ParseRange(start, end)
	if err != nil {
		return ledger.Result{}, err
	}
	return s.QueryRange(ctx, rng)
}

func (s *LedgerService) QueryRange(ctx context.Context, rng ledger.Range) (ledger.Result, error) {
	began := time.Now()
	key := rng.String()

	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			s.metrics.RecordQuery(true, time.Since(began))
			return res, nil
		}
	}

	recs, err := s.Records(ctx)
	if err != nil {
		return ledger.Result{}, err
	}
	res := rng.Query(recs)

	if s.cache != nil {
		s.cache.Set(key, res)
	}
	s.metrics.RecordQuery(false, time.Since(began))

	slog.DebugContext(ctx, "Range query",
		"component", "ledger",
		"range", key,
		"loaded", len(recs),
		"matched", len(res.Records))
	return res, nil
}

// Close releases the store and publisher when they hold resources.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
