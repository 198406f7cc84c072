// Package route holds the immutable hook routing model: which host+path
// keys are accepted, what each expects on the way in, and where each
// relays to on the way out.
package route

// Key identifies an inbound hook as "<host>/<path>".
type Key = string

// Contract is what an inbound call must satisfy.
type Contract struct {
	ContentType string
	Secret      string // empty accepts unsigned payloads
}

// Reword replaces the relayed body with a rendered template.
type Reword struct {
	ContentType string
	Template    string
}

// Destination is one outbound target of a route.
type Destination struct {
	URL         string
	Secret      string   // empty sends unsigned
	KeepHeaders []string // case-insensitive allow-list
	Reword      *Reword
}

// Route is a validated hook definition.
type Route struct {
	Key          Key
	Incoming     Contract
	Destinations []Destination
}

// MakeKey joins host and path into a route key. A leading slash on path is
// dropped so that "/github" on "hooks.example.com" yields
// "hooks.example.com/github".
func MakeKey(host, path string) Key {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return host + "/" + path
}
