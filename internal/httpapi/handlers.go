package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finserv-applications/internal/aggregation"
	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/lifecycle"
	"finserv-applications/internal/models"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxBodyBytes    = 1 << 20
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	service *lifecycle.Service
	engine  *aggregation.Engine
	checks  map[string]HealthCheck
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(service *lifecycle.Service, engine *aggregation.Engine, checks map[string]HealthCheck, log logger.Logger) *Handler {
	l := logger.ForComponent(log, "httpapi")
	return &Handler{
		service: service,
		engine:  engine,
		checks:  checks,
		errors:  apperrors.NewErrorHandler(l),
		logger:  l,
	}
}

type listResponse struct {
	Items  []*models.Application `json:"items"`
	Count  int                   `json:"count"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type transitionBody struct {
	Status          string     `json:"status"`
	Note            string     `json:"note,omitempty"`
	ExpectedVersion *time.Time `json:"expectedVersion,omitempty"`
}

type categoryView struct {
	Category  models.ServiceCategory `json:"category"`
	Label     string                 `json:"label"`
	Group     string                 `json:"group"`
	Anonymous bool                   `json:"anonymous"`
	HasAmount bool                   `json:"hasAmount"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	category := models.ServiceCategory(mux.Vars(r)["category"])

	entry, ok := h.service.Registry().Lookup(category)
	if !ok {
		h.errors.Write(w, r, apperrors.NewNotFoundError("service category", string(category)))
		return
	}
	if caller.Anonymous() && !entry.Anonymous {
		h.errors.Write(w, r, apperrors.NewUnauthenticatedError("sign in to submit "+string(category)))
		return
	}

	payload, err := decodePayload(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	rec, err := h.service.Submit(r.Context(), caller, category, payload)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	setETag(w, rec)
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	items, err := h.service.List(r.Context(), caller, models.ServiceCategory(mux.Vars(r)["category"]), opts)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Application{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items), Limit: opts.Limit, Offset: opts.Offset})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	rec, err := h.service.Get(r.Context(), caller, models.ServiceCategory(vars["category"]), vars["id"])
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	setETag(w, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	version, err := parseIfMatch(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	payload, err := decodePayload(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	vars := mux.Vars(r)
	rec, err := h.service.Edit(r.Context(), caller, models.ServiceCategory(vars["category"]), vars["id"], payload, version)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	setETag(w, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var body transitionBody
	if err := decodeJSON(r, &body); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	target, known := models.ParseStatus(body.Status)
	if !known {
		h.errors.Write(w, r, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", body.Status)))
		return
	}

	version := body.ExpectedVersion
	if version == nil {
		if version, ok = h.ifMatch(w, r); !ok {
			return
		}
	}

	vars := mux.Vars(r)
	rec, err := h.service.Transition(r.Context(), caller, lifecycle.TransitionRequest{
		Category:        models.ServiceCategory(vars["category"]),
		ID:              vars["id"],
		Target:          target,
		Note:            body.Note,
		ExpectedVersion: version,
	})
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	setETag(w, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	summary, err := h.engine.Summarize(r.Context(), caller)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Registry().All()
	out := make([]categoryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, categoryView{
			Category:  e.Category,
			Label:     e.Label,
			Group:     e.Group,
			Anonymous: e.Anonymous,
			HasAmount: e.HasAmount(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.Warn("health check failed", map[string]interface{}{"check": name, "error": err})
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller := CallerFrom(r.Context())
	if caller.Anonymous() {
		h.errors.Write(w, r, apperrors.NewUnauthenticatedError("missing bearer token"))
		return caller, false
	}
	return caller, true
}

func (h *Handler) ifMatch(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	version, err := parseIfMatch(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return nil, false
	}
	return version, true
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("invalid JSON body: " + err.Error())
	}
	return nil
}

// decodePayload reads the request body as the opaque application payload.
func decodePayload(r *http.Request) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return payload, nil
}

func parseListOptions(r *http.Request) (lifecycle.ListOptions, error) {
	q := r.URL.Query()
	opts := lifecycle.ListOptions{Limit: defaultPageSize}

	if raw := q.Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return opts, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", raw))
		}
		opts.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			return opts, apperrors.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
		}
		opts.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperrors.NewValidationError("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

// parseIfMatch reads the optimistic version token. An absent header yields nil.
func parseIfMatch(r *http.Request) (*time.Time, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperrors.NewValidationError("If-Match must be an RFC 3339 version token")
	}
	version = version.UTC()
	return &version, nil
}

func setETag(w http.ResponseWriter, rec *models.Application) {
	w.Header().Set("ETag", `"`+rec.Version().UTC().Format(time.RFC3339Nano)+`"`)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
