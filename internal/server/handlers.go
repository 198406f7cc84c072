package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"mightyhooks/internal/ingress"
)

const outcomeAccepted = "accepted"

// HandleHook validates an inbound hook and relays it to every destination
// of its route before answering 204.
func (s *Server) HandleHook(w http.ResponseWriter, r *http.Request) {
	event, err := s.Validator.Validate(r)
	if err != nil {
		var rejection *ingress.Rejection
		if !errors.As(err, &rejection) {
			s.Logger.Error("Failed to validate hook", "error", err)
			s.observeIngress(ingress.InternalError.String())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.observeIngress(rejection.Reason.String())
		w.WriteHeader(rejection.Reason.Status())
		return
	}
	s.observeIngress(outcomeAccepted)

	// a caller that hangs up does not abort the relay
	ctx := context.WithoutCancel(r.Context())
	if s.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DispatchTimeout)
		defer cancel()
	}

	s.Dispatcher.Dispatch(ctx, event)

	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":     "ok",
		"hooks":      s.Routes.Keys(),
		"hook_count": s.Routes.Len(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) observeIngress(outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveIngress(outcome)
	}
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
