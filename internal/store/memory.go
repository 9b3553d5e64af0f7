package store

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/models"
	"finserv-applications/pkg/registry"
)

// MemoryStore keeps every collection in process. It backs the memory driver
// and the test suites. It does not implement Counter.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*models.Application
	now         func() time.Time
}

// NewMemoryStore creates one empty collection per registry entry.
func NewMemoryStore(reg *registry.Registry) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]*models.Application),
		now:         time.Now,
	}
	if reg != nil {
		for _, entry := range reg.All() {
			s.collections[entry.Collection] = make(map[string]*models.Application)
		}
	}
	return s
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// DropCollection removes a collection and its records.
func (s *MemoryStore) DropCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
}

// Load stores records verbatim, bypassing envelope checks. Used to import
// pre-existing data whose status may use legacy spellings.
func (s *MemoryStore) Load(entry registry.Entry, recs ...*models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[entry.Collection]
	if !ok {
		coll = make(map[string]*models.Application)
		s.collections[entry.Collection] = coll
	}
	for _, rec := range recs {
		coll[rec.ID] = rec.Clone()
	}
}

func (s *MemoryStore) Insert(ctx context.Context, entry registry.Entry, rec *models.Application) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[entry.Collection]
	if !ok {
		return nil, apperrors.NewCollectionNotFoundError(entry.Collection)
	}
	stored, err := newRecord(entry, rec, s.now())
	if err != nil {
		return nil, err
	}
	coll[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, entry registry.Entry, id string, filter Filter) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(entry, id, filter)
	if err != nil {
		return nil, err
	}
	return normalized(rec), nil
}

func (s *MemoryStore) Find(ctx context.Context, entry registry.Entry, filter Filter, opts FindOptions) iter.Seq2[*models.Application, error] {
	return func(yield func(*models.Application, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		matched, err := s.snapshot(entry, filter)
		if err != nil {
			yield(nil, err)
			return
		}
		sortRecords(matched, opts.Order)

		w := window{opts: opts}
		for _, rec := range matched {
			keep, more := w.admit(rec)
			if keep && !yield(rec, nil) {
				return
			}
			if !more {
				return
			}
		}
	}
}

func (s *MemoryStore) Update(ctx context.Context, entry registry.Entry, id string, filter Filter, version time.Time, patch Patch) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.lookup(entry, id, filter)
	if err != nil {
		return nil, err
	}
	if !current.UpdatedAt.Equal(version) {
		return nil, apperrors.NewConflictError(id, version)
	}

	next := normalized(current)
	if err := applyPatch(entry, next, patch, nextVersion(s.now(), current.UpdatedAt)); err != nil {
		return nil, err
	}
	s.collections[entry.Collection][id] = next
	return next.Clone(), nil
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(entry registry.Entry, id string, filter Filter) (*models.Application, error) {
	coll, ok := s.collections[entry.Collection]
	if !ok {
		return nil, apperrors.NewCollectionNotFoundError(entry.Collection)
	}
	rec, ok := coll[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("application", id)
	}
	if !filter.Match(rec) {
		return nil, apperrors.NewForbiddenError("application " + id + " is outside the caller's scope")
	}
	return rec, nil
}

func (s *MemoryStore) snapshot(entry registry.Entry, filter Filter) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[entry.Collection]
	if !ok {
		return nil, apperrors.NewCollectionNotFoundError(entry.Collection)
	}
	if filter.Deny {
		return nil, nil
	}
	out := make([]*models.Application, 0, len(coll))
	for _, rec := range coll {
		if filter.Match(rec) {
			out = append(out, normalized(rec))
		}
	}
	return out, nil
}

// normalized returns a copy with canonical statuses.
func normalized(rec *models.Application) *models.Application {
	out := rec.Clone()
	out.Status = models.NormalizeStatus(string(rec.Status))
	for i := range out.StatusHistory {
		out.StatusHistory[i].Status = models.NormalizeStatus(string(out.StatusHistory[i].Status))
	}
	return out
}

func sortRecords(recs []*models.Application, order SortOrder) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order == CreatedAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
