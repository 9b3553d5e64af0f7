// Package aggregation folds per-category counts and sums into the admin
// dashboard summary.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/common/metrics"
	"finserv-applications/internal/models"
	"finserv-applications/internal/ownership"
	"finserv-applications/internal/store"
	"finserv-applications/pkg/registry"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultEntryTimeout = 2 * time.Second
	defaultMaxParallel  = 4
)

type Config struct {
	// EntryTimeout bounds the scan of a single registry entry.
	EntryTimeout time.Duration
	MaxParallel  int
	// Cache is optional.
	Cache Cache
}

type Engine struct {
	registry *registry.Registry
	store    store.Store
	config   Config
	logger   logger.Logger
	flight   singleflight.Group
	now      func() time.Time
}

func NewEngine(config Config, reg *registry.Registry, st store.Store, log logger.Logger) *Engine {
	if config.EntryTimeout <= 0 {
		config.EntryTimeout = defaultEntryTimeout
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = defaultMaxParallel
	}
	return &Engine{
		registry: reg,
		store:    st,
		config:   config,
		logger:   logger.ForComponent(log, "aggregation"),
		now:      time.Now,
	}
}

// entryResult is written by exactly one goroutine.
type entryResult struct {
	byStatus map[models.Status]int64
	count    int64
	sum      int64
	failed   bool
}

// Summarize builds the dashboard summary visible to caller. Per-entry
// failures, timeouts and overflowing sums count as empty. Only cancellation
// of ctx and a grand total beyond int64 are returned as errors.
func (e *Engine) Summarize(ctx context.Context, caller models.Caller) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := CacheKey(caller)

	if e.config.Cache != nil {
		cached, ok, err := e.config.Cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.SummaryCacheRequests.WithLabelValues("error").Inc()
			e.logger.Warn("summary cache read failed", map[string]interface{}{"key": key, "error": err})
		case ok:
			metrics.SummaryCacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.SummaryCacheRequests.WithLabelValues("miss").Inc()
		}
	}

	// Callers sharing a scope share one computation and each gets its own
	// copy. The computation is detached from any single caller; per-entry
	// timeouts bound it.
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.compute(context.WithoutCancel(ctx), caller)
	})
	var summary *Summary
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		summary = res.Val.(*Summary).clone()
	}

	// Partial summaries are served but never cached.
	if e.config.Cache != nil && len(summary.Unavailable) == 0 {
		if err := e.config.Cache.Set(ctx, key, summary); err != nil {
			e.logger.Warn("summary cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return summary, nil
}

func (e *Engine) compute(ctx context.Context, caller models.Caller) (*Summary, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	}()

	entries := e.registry.All()
	results := make([]entryResult, len(entries))

	var g errgroup.Group
	g.SetLimit(e.config.MaxParallel)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = e.scanEntry(ctx, caller, entry)
			return nil
		})
	}
	_ = g.Wait()

	return e.fold(entries, results)
}

func (e *Engine) scanEntry(ctx context.Context, caller models.Caller, entry registry.Entry) entryResult {
	result := entryResult{byStatus: emptyStatusCounts()}

	filter := ownership.Scope(caller, entry)
	if filter.Deny {
		return result
	}

	entryCtx, cancel := context.WithTimeout(ctx, e.config.EntryTimeout)
	defer cancel()

	var err error
	if counter, ok := e.store.(store.Counter); ok {
		err = countByStatus(entryCtx, counter, entry, filter, &result)
	} else {
		err = e.walkRecords(entryCtx, entry, filter, &result)
	}
	if err == nil {
		return result
	}

	reason := "error"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, store.ErrAmountOverflow):
		reason = "overflow"
	}
	metrics.AggregationEntryFailures.WithLabelValues(string(entry.Category), reason).Inc()
	e.logger.Warn("registry entry counted as empty", map[string]interface{}{
		"category":   entry.Category,
		"collection": entry.Collection,
		"reason":     reason,
		"error":      err,
	})
	return entryResult{byStatus: emptyStatusCounts(), failed: true}
}

func countByStatus(ctx context.Context, counter store.Counter, entry registry.Entry, filter store.Filter, result *entryResult) error {
	totals, err := counter.CountByStatus(ctx, entry, filter)
	if err != nil {
		return err
	}
	for _, t := range totals {
		sum, err := store.AddAmount(result.sum, t.Sum)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Collection, err)
		}
		result.sum = sum
		status := models.NormalizeStatus(string(t.Status))
		result.byStatus[status] += t.Count
		result.count += t.Count
	}
	return nil
}

// walkRecords is the fallback for stores without server-side counting.
func (e *Engine) walkRecords(ctx context.Context, entry registry.Entry, filter store.Filter, result *entryResult) error {
	for rec, err := range e.store.Find(ctx, entry, filter, store.FindOptions{}) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.Amount != nil {
			sum, err := store.AddAmount(result.sum, *rec.Amount)
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Collection, err)
			}
			result.sum = sum
		}
		result.byStatus[models.NormalizeStatus(string(rec.Status))]++
		result.count++
	}
	return nil
}

func (e *Engine) fold(entries []registry.Entry, results []entryResult) (*Summary, error) {
	summary := &Summary{
		TotalsByStatus:   emptyStatusCounts(),
		TotalsByCategory: make(map[models.ServiceCategory]*CategoryTotal, len(entries)),
		GeneratedAt:      e.now().UTC(),
	}

	for i, entry := range entries {
		r := results[i]
		total := &CategoryTotal{Count: r.count, ByStatus: r.byStatus}
		if entry.HasAmount() {
			sum := r.sum
			total.Sum = &sum
			grand, err := store.AddAmount(summary.GrandTotalSum, r.sum)
			if err != nil {
				return nil, apperrors.NewInternalError(fmt.Errorf("grand total at %s: %w", entry.Category, err))
			}
			summary.GrandTotalSum = grand
		}
		for status, n := range r.byStatus {
			summary.TotalsByStatus[status] += n
		}
		summary.TotalsByCategory[entry.Category] = total
		summary.GrandTotalCount += r.count
		if r.failed {
			summary.Unavailable = append(summary.Unavailable, entry.Category)
		}
	}
	return summary, nil
}

func (s *Summary) clone() *Summary {
	out := *s
	out.TotalsByStatus = make(map[models.Status]int64, len(s.TotalsByStatus))
	for k, v := range s.TotalsByStatus {
		out.TotalsByStatus[k] = v
	}
	out.TotalsByCategory = make(map[models.ServiceCategory]*CategoryTotal, len(s.TotalsByCategory))
	for k, v := range s.TotalsByCategory {
		total := &CategoryTotal{Count: v.Count, ByStatus: make(map[models.Status]int64, len(v.ByStatus))}
		if v.Sum != nil {
			sum := *v.Sum
			total.Sum = &sum
		}
		for status, n := range v.ByStatus {
			total.ByStatus[status] = n
		}
		out.TotalsByCategory[k] = total
	}
	if s.Unavailable != nil {
		out.Unavailable = append([]models.ServiceCategory(nil), s.Unavailable...)
	}
	return &out
}
