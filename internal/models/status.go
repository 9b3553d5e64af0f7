package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the closed set of application states.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusUnderReview Status = "UnderReview"
	StatusApproved    Status = "Approved"
	StatusRejected    Status = "Rejected"
	StatusDisbursed   Status = "Disbursed"
)

// AllStatuses lists the canonical statuses in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusDisbursed,
}

// legacyStatuses maps squashed lowercase spellings seen in older records to the
// canonical value.
var legacyStatuses = map[string]Status{
	"pending":     StatusPending,
	"submitted":   StatusPending,
	"new":         StatusPending,
	"underreview": StatusUnderReview,
	"inreview":    StatusUnderReview,
	"reviewing":   StatusUnderReview,
	"processing":  StatusUnderReview,
	"approved":    StatusApproved,
	"rejected":    StatusRejected,
	"declined":    StatusRejected,
	"disbursed":   StatusDisbursed,
}

// ParseStatus normalizes casing, spaces, hyphens and underscores.
func ParseStatus(raw string) (Status, bool) {
	squashed := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))

	status, ok := legacyStatuses[squashed]
	return status, ok
}

// NormalizeStatus returns the canonical status, falling back to Pending for
// missing or unrecognized values from records that predate the status field.
func NormalizeStatus(raw string) Status {
	if status, ok := ParseStatus(raw); ok {
		return status
	}
	return StatusPending
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// UnmarshalJSON accepts legacy spellings; unknown values are rejected.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, ok := ParseStatus(raw)
	if !ok {
		return fmt.Errorf("unknown status %q", raw)
	}
	*s = status
	return nil
}
