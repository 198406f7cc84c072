// Package hook defines the values that travel from ingress to dispatch.
package hook

import "mightyhooks/internal/route"

// MediaTypeJSON is the only content type exposed to templates as parsed
// data. Matching is exact.
const MediaTypeJSON = "application/json"

// Body is an inbound or outbound payload together with its content type.
// Content is shared between destinations and must be treated as read-only.
type Body struct {
	Content     []byte
	ContentType string
}

// IsJSON reports whether the body declares exactly the JSON media type.
func (b Body) IsJSON() bool {
	return b.ContentType == MediaTypeJSON
}

// Event is an inbound call that passed ingress validation.
type Event struct {
	ID         string
	RouteKey   route.Key
	ClientAddr string
	Route      *route.Route
	Body       Body
	Headers    map[string]string // lower-cased names
}
