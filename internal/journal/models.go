package journal

import "time"

// Record is a single delivery outcome stored in the journal. Payloads are
// never stored.
type Record struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	RouteKey    string    `json:"route_key"`
	Destination string    `json:"destination"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"` // success, failure
	StatusCode  *int      `json:"status_code,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
