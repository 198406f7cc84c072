package dispatch

import (
	"context"
	"time"

	"mightyhooks/internal/hook"
)

// Stage names where a delivery stopped.
const (
	StageReword  = "reword"
	StageDeliver = "deliver"
)

// Delivery is the fully prepared outbound request for one destination.
type Delivery struct {
	URL       string
	Headers   map[string]string
	Body      hook.Body
	Signature string // X-Hub-Signature-256 value, empty when unsigned
}

// Outcome describes how one delivery ended.
type Outcome struct {
	EventID     string
	RouteKey    string
	Destination string
	Stage       string
	StatusCode  int
	Duration    time.Duration
	Err         error
}

// Success reports whether the destination answered 2xx or 3xx.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 400
}

// Result is "success" or "failure".
func (o Outcome) Result() string {
	if o.Success() {
		return "success"
	}
	return "failure"
}

// Recorder receives every delivery outcome. Implementations must be safe
// for concurrent use and must not block for long.
type Recorder interface {
	RecordDelivery(ctx context.Context, o Outcome)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, o Outcome)

func (f RecorderFunc) RecordDelivery(ctx context.Context, o Outcome) {
	f(ctx, o)
}
