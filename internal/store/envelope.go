package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/models"
	"finserv-applications/pkg/registry"

	"github.com/google/uuid"
)

// newRecord validates the envelope and builds the stored form of a submission.
func newRecord(entry registry.Entry, rec *models.Application, now time.Time) (*models.Application, error) {
	if rec == nil {
		return nil, apperrors.NewValidationError("record is required")
	}
	if rec.ServiceCategory == "" {
		return nil, apperrors.NewValidationError("serviceCategory is required")
	}
	if rec.ServiceCategory != entry.Category {
		return nil, apperrors.NewValidationError(fmt.Sprintf(
			"serviceCategory %q does not belong to collection %s", rec.ServiceCategory, entry.Collection))
	}

	var owner *string
	if rec.OwnerID != nil && *rec.OwnerID != "" {
		owner = models.StringPtr(*rec.OwnerID)
	}
	if owner == nil && !entry.Anonymous {
		return nil, apperrors.NewValidationError("ownerId is required for " + string(entry.Category))
	}

	amount, err := ExtractAmount(entry, rec.Payload)
	if err != nil {
		return nil, err
	}

	ts := now.UTC().Truncate(time.Microsecond)
	actor := ""
	if owner != nil {
		actor = *owner
	}

	out := rec.Clone()
	out.ID = uuid.New().String()
	out.OwnerID = owner
	out.Status = models.StatusPending
	out.Amount = amount
	out.CreatedAt = ts
	out.UpdatedAt = ts
	out.StatusHistory = []models.StatusChange{{
		Status:    models.StatusPending,
		Timestamp: ts,
		ActorID:   actor,
	}}
	if out.Payload == nil {
		out.Payload = map[string]interface{}{}
	}
	return out, nil
}

// applyPatch mutates rec in place. The caller has already checked version.
func applyPatch(entry registry.Entry, rec *models.Application, patch Patch, version time.Time) error {
	if patch.Payload != nil {
		amount, err := ExtractAmount(entry, patch.Payload)
		if err != nil {
			return err
		}
		rec.Payload = models.ClonePayload(patch.Payload)
		rec.Amount = amount
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.History != nil {
		change := *patch.History
		change.Timestamp = version
		rec.StatusHistory = append(rec.StatusHistory, change)
	}
	rec.UpdatedAt = version
	return nil
}

// ExtractAmount reads the registry-declared numeric field. A missing or null
// value yields nil; anything that is not a whole number within
// ±models.MaxAmount is a ValidationError.
func ExtractAmount(entry registry.Entry, payload map[string]interface{}) (*int64, error) {
	if !entry.HasAmount() || payload == nil {
		return nil, nil
	}
	raw, ok := payload[entry.AmountField]
	if !ok || raw == nil {
		return nil, nil
	}

	invalid := func() (*int64, error) {
		return nil, apperrors.NewValidationError(fmt.Sprintf(
			"%s must be a whole number, got %v", entry.AmountField, raw))
	}

	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
			return invalid()
		}
		n = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return invalid()
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return invalid()
		}
		n = parsed
	default:
		return invalid()
	}
	if n > models.MaxAmount || n < -models.MaxAmount {
		return nil, apperrors.NewValidationError(fmt.Sprintf(
			"%s must be at most %d in magnitude, got %d", entry.AmountField, models.MaxAmount, n))
	}
	return &n, nil
}
