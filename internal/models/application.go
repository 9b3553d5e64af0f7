// internal/models/application.go
package models

import "time"

// ServiceCategory tags which per-service collection a record belongs to.
type ServiceCategory string

const (
	CategoryPersonalLoan        ServiceCategory = "personal_loan"
	CategoryHomeLoan            ServiceCategory = "home_loan"
	CategoryBusinessLoan        ServiceCategory = "business_loan"
	CategoryEducationLoan       ServiceCategory = "education_loan"
	CategoryVehicleLoan         ServiceCategory = "vehicle_loan"
	CategoryHealthInsurance     ServiceCategory = "health_insurance"
	CategoryLifeInsurance       ServiceCategory = "life_insurance"
	CategoryMotorInsurance      ServiceCategory = "motor_insurance"
	CategoryPersonalTax         ServiceCategory = "personal_tax"
	CategoryCorporateTax        ServiceCategory = "corporate_tax"
	CategoryCorporateGST        ServiceCategory = "corporate_gst"
	CategoryCompanyRegistration ServiceCategory = "company_registration"
)

// MaxAmount bounds any single registry-declared amount, in minor units. It
// keeps per-category and grand totals far from int64 overflow.
const MaxAmount int64 = 1_000_000_000_000_000

// Application is the common envelope shared by every service collection.
// Business fields stay in Payload and are never inspected by the core except
// for the registry-declared amount field.
type Application struct {
	ID              string                 `json:"id"`
	ServiceCategory ServiceCategory        `json:"serviceCategory"`
	OwnerID         *string                `json:"ownerId"`
	Status          Status                 `json:"status"`
	Amount          *int64                 `json:"amount,omitempty"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	StatusHistory   []StatusChange         `json:"statusHistory"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// StatusChange is one append-only history entry.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actorId"`
	Note      string    `json:"note,omitempty"`
}

// IsOwnedBy reports whether userID submitted the application.
func (a *Application) IsOwnedBy(userID string) bool {
	return a.OwnerID != nil && userID != "" && *a.OwnerID == userID
}

// Version is the optimistic concurrency token.
func (a *Application) Version() time.Time {
	return a.UpdatedAt
}

// Clone returns a deep copy so stores never hand out shared state.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	if a.OwnerID != nil {
		owner := *a.OwnerID
		out.OwnerID = &owner
	}
	if a.Amount != nil {
		amount := *a.Amount
		out.Amount = &amount
	}
	out.Payload = ClonePayload(a.Payload)
	if a.StatusHistory != nil {
		out.StatusHistory = make([]StatusChange, len(a.StatusHistory))
		copy(out.StatusHistory, a.StatusHistory)
	}
	return &out
}

// ClonePayload deep-copies nested maps and slices.
func ClonePayload(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return ClonePayload(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return val
	}
}

// StringPtr is a small helper for optional owner ids.
func StringPtr(s string) *string {
	return &s
}
