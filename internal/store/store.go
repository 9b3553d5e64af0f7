// Package store is the record store adapter: uniform reads and writes over the
// per-category collections named in the registry. Every call takes the
// caller's Filter so ownership is enforced at the storage boundary.
package store

import (
	"context"
	"errors"
	"iter"
	"math"
	"time"

	"finserv-applications/internal/models"
	"finserv-applications/pkg/registry"
)

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	// Insert assigns id, timestamps, Pending status and the initial history
	// entry. rec is not modified.
	Insert(ctx context.Context, entry registry.Entry, rec *models.Application) (*models.Application, error)

	// FindByID returns NotFound when absent and Forbidden when the record
	// exists outside filter.
	FindByID(ctx context.Context, entry registry.Entry, id string, filter Filter) (*models.Application, error)

	// Find streams matching records. The query runs when the sequence is
	// ranged over; a failure is yielded once as the error and ends iteration.
	Find(ctx context.Context, entry registry.Entry, filter Filter, opts FindOptions) iter.Seq2[*models.Application, error]

	// Update applies patch if the stored version still equals version and
	// always advances UpdatedAt.
	Update(ctx context.Context, entry registry.Entry, id string, filter Filter, version time.Time, patch Patch) (*models.Application, error)
}

// Counter is the optional server-side aggregation fast path.
type Counter interface {
	CountByStatus(ctx context.Context, entry registry.Entry, filter Filter) ([]StatusTotal, error)
}

// StatusTotal is one status bucket of a collection. Statuses are normalized,
// so two rows may share a Status when legacy spellings coexist.
type StatusTotal struct {
	Status models.Status
	Count  int64
	Sum    int64
}

// ErrAmountOverflow reports an amount total that no longer fits in int64.
var ErrAmountOverflow = errors.New("amount total overflows int64")

// AddAmount returns acc+n, or ErrAmountOverflow instead of wrapping.
func AddAmount(acc, n int64) (int64, error) {
	if (n > 0 && acc > math.MaxInt64-n) || (n < 0 && acc < math.MinInt64-n) {
		return acc, ErrAmountOverflow
	}
	return acc + n, nil
}

// Filter is the ownership predicate pushed into every query.
type Filter struct {
	// AllOwners disables owner matching (admin scope).
	AllOwners bool
	// OwnerID restricts results to records submitted by this user.
	OwnerID string
	// Deny matches nothing.
	Deny bool
}

// Match applies the filter to a single record.
func (f Filter) Match(rec *models.Application) bool {
	switch {
	case f.Deny:
		return false
	case f.AllOwners:
		return true
	default:
		return rec.IsOwnedBy(f.OwnerID)
	}
}

type SortOrder int

const (
	CreatedDesc SortOrder = iota
	CreatedAsc
)

// FindOptions narrows and pages a Find. Zero value lists everything newest
// first.
type FindOptions struct {
	Status *models.Status
	Limit  int
	Offset int
	Order  SortOrder
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status *models.Status
	// History is appended; its Timestamp is set to the new UpdatedAt.
	History *models.StatusChange
	// Payload replaces the stored payload and re-derives Amount.
	Payload map[string]interface{}
}

// nextVersion returns a microsecond-precision timestamp strictly after prev,
// matching what Postgres can round-trip.
func nextVersion(now, prev time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if !t.After(prev) {
		t = prev.UTC().Add(time.Microsecond)
	}
	return t
}

// window applies status filtering and paging to an ordered stream.
type window struct {
	opts    FindOptions
	skipped int
	emitted int
}

// admit reports whether rec belongs in the page and whether iteration may
// continue afterwards.
func (w *window) admit(rec *models.Application) (keep bool, more bool) {
	if w.opts.Status != nil && rec.Status != *w.opts.Status {
		return false, true
	}
	if w.skipped < w.opts.Offset {
		w.skipped++
		return false, true
	}
	if w.opts.Limit > 0 && w.emitted >= w.opts.Limit {
		return false, false
	}
	w.emitted++
	return true, w.opts.Limit <= 0 || w.emitted < w.opts.Limit
}

// Collect drains a Find sequence into a slice.
func Collect(seq iter.Seq2[*models.Application, error]) ([]*models.Application, error) {
	var out []*models.Application
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Store   = (*PostgresStore)(nil)
	_ Counter = (*PostgresStore)(nil)
)
