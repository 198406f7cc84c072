package ingress

import (
	"fmt"
	"net/http"
)

// Reason classifies why an inbound call was not accepted.
type Reason int

const (
	MalformedRequest Reason = iota + 1
	InternalError
	RouteNotFound
	ContentTypeInvalid
	SignatureMissing
	SignatureInvalid
)

var reasonNames = map[Reason]string{
	MalformedRequest:   "malformed_request",
	InternalError:      "internal_error",
	RouteNotFound:      "route_not_found",
	ContentTypeInvalid: "content_type_invalid",
	SignatureMissing:   "signature_missing",
	SignatureInvalid:   "signature_invalid",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Status returns the HTTP status returned to the caller.
func (r Reason) Status() int {
	switch r {
	case RouteNotFound:
		return http.StatusNotFound
	case InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Rejection is returned by Validate for every call that is not accepted.
type Rejection struct {
	Reason     Reason
	RouteKey   string
	ClientAddr string
	Detail     string
}

func (e *Rejection) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return e.Reason.String()
}
