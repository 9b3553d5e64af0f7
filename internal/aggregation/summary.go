package aggregation

import (
	"time"

	"finserv-applications/internal/models"
)

// Summary is an immutable dashboard snapshot. Nothing holds a reference to
// it after Summarize returns.
type Summary struct {
	TotalsByStatus   map[models.Status]int64                   `json:"totalsByStatus"`
	TotalsByCategory map[models.ServiceCategory]*CategoryTotal `json:"totalsByCategory"`
	GrandTotalCount  int64                                     `json:"grandTotalCount"`
	GrandTotalSum    int64                                     `json:"grandTotalSum"`
	GeneratedAt      time.Time                                 `json:"generatedAt"`
	// Unavailable lists categories that failed or timed out and were counted
	// as empty.
	Unavailable []models.ServiceCategory `json:"unavailable,omitempty"`
}

// CategoryTotal is one category's slice of the summary. Sum is nil when the
// category has no numeric field.
type CategoryTotal struct {
	Count    int64                   `json:"count"`
	Sum      *int64                  `json:"sum,omitempty"`
	ByStatus map[models.Status]int64 `json:"byStatus"`
}

func emptyStatusCounts() map[models.Status]int64 {
	out := make(map[models.Status]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = 0
	}
	return out
}
