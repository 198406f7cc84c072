// Package server implements the HTTP front of the webhook relay.
//
// This package provides:
//   - a catch-all POST endpoint keyed by Host + path that validates the
//     request (internal/ingress) and fans it out (internal/dispatch)
//   - health and optional Prometheus endpoints
//   - structured access logging and the Server response header
//
// A request is answered only after every delivery has finished, so a 204
// means every destination was attempted, not that every one succeeded.
package server
