package registry

import "finserv-applications/internal/models"

// Registry maps service categories to their backing collections. It is loaded
// once at startup and never mutated afterwards.
type Registry struct {
	Version     string  `json:"version"`
	LastUpdated string  `json:"lastUpdated"`
	Entries     []Entry `json:"entries"`

	index map[models.ServiceCategory]int
}

// Entry describes one per-service collection.
type Entry struct {
	Category    models.ServiceCategory `json:"category"`
	Label       string                 `json:"label"`
	Group       string                 `json:"group"`
	Collection  string                 `json:"collection"`
	AmountField string                 `json:"amountField,omitempty"`
	StatusField string                 `json:"statusField,omitempty"`
	// Anonymous categories accept submissions without an owner; regular
	// callers may create them but never list them.
	Anonymous     bool                   `json:"anonymous,omitempty"`
	PayloadSchema map[string]interface{} `json:"payloadSchema,omitempty"`
}

const (
	GroupLoan      = "loan"
	GroupInsurance = "insurance"
	GroupTax       = "tax"
	GroupCorporate = "corporate"

	DefaultStatusField = "status"
)

// HasAmount reports whether the category declares a numeric field.
func (e Entry) HasAmount() bool {
	return e.AmountField != ""
}
