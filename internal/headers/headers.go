// Package headers converts inbound request headers into the flat mapping
// used by the relay pipeline and filters that mapping per destination.
package headers

import (
	"net/http"
	"net/textproto"
	"strings"

	"mightyhooks/internal/signing"
)

// never lists lower-cased headers that are not relayed even when a
// destination asks to keep them. Outbound signatures are computed fresh.
var never = map[string]bool{
	strings.ToLower(signing.HeaderSignature):    true,
	strings.ToLower(signing.HeaderSignature256): true,
}

// Extract flattens h into a map keyed by lower-cased header name. When a
// header repeats, the last value wins.
func Extract(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[len(values)-1]
	}
	return out
}

// Filter returns the entries of headers named in keep, compared
// case-insensitively. Keys in the result use canonical MIME form. Names in
// keep that are absent from headers are skipped.
func Filter(headers map[string]string, keep []string) map[string]string {
	out := make(map[string]string, len(keep))
	for _, name := range keep {
		lower := strings.ToLower(name)
		if never[lower] {
			continue
		}
		value, ok := headers[lower]
		if !ok {
			continue
		}
		out[textproto.CanonicalMIMEHeaderKey(lower)] = value
	}
	return out
}
