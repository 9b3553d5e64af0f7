// Package lifecycle owns submission, owner edits and admin status transitions
// for application records.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/common/metrics"
	"finserv-applications/internal/common/validation"
	"finserv-applications/internal/models"
	"finserv-applications/internal/ownership"
	"finserv-applications/internal/store"
	"finserv-applications/pkg/registry"
)

type Service struct {
	registry *registry.Registry
	store    store.Store
	logger   logger.Logger
}

func NewService(reg *registry.Registry, st store.Store, log logger.Logger) *Service {
	return &Service{
		registry: reg,
		store:    st,
		logger:   logger.ForComponent(log, "lifecycle"),
	}
}

// ListOptions pages a listing. Status, when set, must be canonical.
type ListOptions struct {
	Status *models.Status
	Limit  int
	Offset int
}

// TransitionRequest is an admin status change.
type TransitionRequest struct {
	Category models.ServiceCategory
	ID       string
	Target   models.Status
	Note     string
	// ExpectedVersion, when set, must equal the record's current version.
	ExpectedVersion *time.Time
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

func (s *Service) Submit(ctx context.Context, caller models.Caller, category models.ServiceCategory, payload map[string]interface{}) (*models.Application, error) {
	entry, err := s.entry(category)
	if err != nil {
		return nil, s.fail("submit", err)
	}
	if err := validation.ValidatePayload(payload, entry.PayloadSchema); err != nil {
		return nil, s.fail("submit", err)
	}

	rec := &models.Application{ServiceCategory: entry.Category, Payload: payload}
	if !caller.Anonymous() {
		rec.OwnerID = models.StringPtr(caller.ID)
	}

	created, err := s.store.Insert(ctx, entry, rec)
	if err != nil {
		return nil, s.fail("submit", err)
	}

	metrics.ApplicationsSubmitted.WithLabelValues(string(entry.Category)).Inc()
	s.logger.Info("application submitted", map[string]interface{}{
		"category":      entry.Category,
		"applicationId": created.ID,
		"ownerId":       caller.ID,
	})
	return created, nil
}

func (s *Service) Get(ctx context.Context, caller models.Caller, category models.ServiceCategory, id string) (*models.Application, error) {
	entry, err := s.entry(category)
	if err != nil {
		return nil, err
	}
	return s.store.FindByID(ctx, entry, id, ownership.Scope(caller, entry))
}

func (s *Service) List(ctx context.Context, caller models.Caller, category models.ServiceCategory, opts ListOptions) ([]*models.Application, error) {
	entry, err := s.entry(category)
	if err != nil {
		return nil, err
	}
	filter, err := ownership.RequireList(caller, entry)
	if err != nil {
		return nil, err
	}
	return store.Collect(s.store.Find(ctx, entry, filter, store.FindOptions{
		Status: opts.Status,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}))
}

// Edit replaces the payload of a Pending application. Only the submitter may
// edit, admins included.
func (s *Service) Edit(ctx context.Context, caller models.Caller, category models.ServiceCategory, id string, payload map[string]interface{}, expectedVersion *time.Time) (*models.Application, error) {
	entry, err := s.entry(category)
	if err != nil {
		return nil, s.fail("edit", err)
	}

	filter := store.Filter{OwnerID: caller.ID}
	if caller.Anonymous() {
		filter = store.Filter{Deny: true}
	}

	current, err := s.store.FindByID(ctx, entry, id, filter)
	if err != nil {
		return nil, s.fail("edit", err)
	}
	if current.Status != models.StatusPending {
		return nil, s.fail("edit", apperrors.NewForbiddenError(fmt.Sprintf(
			"application %s is %s and can no longer be edited", id, current.Status)))
	}
	version := current.Version()
	if expectedVersion != nil {
		if !expectedVersion.Equal(version) {
			return nil, s.fail("edit", apperrors.NewConflictError(id, *expectedVersion))
		}
		version = *expectedVersion
	}
	if err := validation.ValidatePayload(payload, entry.PayloadSchema); err != nil {
		return nil, s.fail("edit", err)
	}

	updated, err := s.store.Update(ctx, entry, id, filter, version, store.Patch{Payload: payload})
	if err != nil {
		return nil, s.fail("edit", err)
	}

	s.logger.Info("application edited", map[string]interface{}{
		"category":      entry.Category,
		"applicationId": id,
	})
	return updated, nil
}

// Transition applies an admin status change. Errors are returned as-is and
// never retried here; on ConflictError the caller re-reads and decides again.
func (s *Service) Transition(ctx context.Context, caller models.Caller, req TransitionRequest) (*models.Application, error) {
	if err := ownership.RequireAdmin(caller, "change application status"); err != nil {
		return nil, s.fail("transition", err)
	}
	entry, err := s.entry(req.Category)
	if err != nil {
		return nil, s.fail("transition", err)
	}
	if !req.Target.Valid() {
		return nil, s.fail("transition", apperrors.NewValidationError(fmt.Sprintf("unknown target status %q", req.Target)))
	}

	filter := ownership.Scope(caller, entry)
	current, err := s.store.FindByID(ctx, entry, req.ID, filter)
	if err != nil {
		return nil, s.fail("transition", err)
	}

	version := current.Version()
	if req.ExpectedVersion != nil && !req.ExpectedVersion.Equal(version) {
		return nil, s.fail("transition", apperrors.NewConflictError(req.ID, *req.ExpectedVersion))
	}
	if !CanTransition(current.Status, req.Target) {
		return nil, s.fail("transition", apperrors.NewInvalidTransitionError(string(current.Status), string(req.Target)))
	}
	if req.Target == models.StatusRejected && strings.TrimSpace(req.Note) == "" {
		return nil, s.fail("transition", apperrors.NewValidationError("a rejection reason is required"))
	}

	target := req.Target
	updated, err := s.store.Update(ctx, entry, req.ID, filter, version, store.Patch{
		Status: &target,
		History: &models.StatusChange{
			Status:  target,
			ActorID: caller.ID,
			Note:    req.Note,
		},
	})
	if err != nil {
		return nil, s.fail("transition", err)
	}

	metrics.StatusTransitions.WithLabelValues(string(entry.Category), string(current.Status), string(target)).Inc()
	s.logger.Info("application status changed", map[string]interface{}{
		"category":      entry.Category,
		"applicationId": req.ID,
		"from":          current.Status,
		"to":            target,
		"actorId":       caller.ID,
	})
	return updated, nil
}

func (s *Service) entry(category models.ServiceCategory) (registry.Entry, error) {
	entry, ok := s.registry.Lookup(category)
	if !ok {
		return registry.Entry{}, apperrors.NewNotFoundError("service category", string(category))
	}
	return entry, nil
}

func (s *Service) fail(op string, err error) error {
	code := apperrors.CodeOf(err)
	metrics.LifecycleFailures.WithLabelValues(op, string(code)).Inc()
	fields := map[string]interface{}{"operation": op, "errorCode": code, "error": err}
	if code == apperrors.ErrCodeInternal {
		s.logger.Error("lifecycle operation failed", fields)
	} else {
		s.logger.Debug("lifecycle operation rejected", fields)
	}
	return err
}
