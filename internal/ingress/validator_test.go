package ingress

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mightyhooks/internal/route"
	"mightyhooks/internal/signing"
)

const testSecret = "test-secret"

func newTestValidator(t *testing.T, opts Options) *Validator {
	t.Helper()

	table := route.NewTable(map[route.Key]*route.Route{
		"hooks.example.com/signed": {
			Key:      "hooks.example.com/signed",
			Incoming: route.Contract{ContentType: "application/json", Secret: testSecret},
			Destinations: []route.Destination{
				{URL: "http://127.0.0.1:1/a"},
			},
		},
		"hooks.example.com/open": {
			Key:      "hooks.example.com/open",
			Incoming: route.Contract{ContentType: "text/plain"},
		},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewValidator(table, opts, logger)
}

func newRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Host = "hooks.example.com"
	return req
}

func requireRejection(t *testing.T, err error, reason Reason) *Rejection {
	t.Helper()

	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected *Rejection, got %v", err)
	assert.Equal(t, reason, rej.Reason)
	return rej
}

func TestValidate_Accepted(t *testing.T) {
	v := newTestValidator(t, Options{})
	body := `{"ref":"refs/heads/main"}`

	req := newRequest("/signed", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(signing.HeaderSignature256, signing.Header(testSecret, []byte(body)))

	event, err := v.Validate(req)
	require.NoError(t, err)

	assert.Equal(t, "hooks.example.com/signed", event.RouteKey)
	assert.Equal(t, "192.0.2.1", event.ClientAddr)
	assert.Equal(t, body, string(event.Body.Content))
	assert.Equal(t, "application/json", event.Body.ContentType)
	assert.Equal(t, "push", event.Headers["x-github-event"])
	assert.Len(t, event.Route.Destinations, 1)
	assert.NotEmpty(t, event.ID)
}

func TestValidate_UnsignedRouteSkipsSignature(t *testing.T) {
	v := newTestValidator(t, Options{})

	req := newRequest("/open", "hello")
	req.Header.Set("Content-Type", "text/plain")

	event, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(event.Body.Content))
}

func TestValidate_Rejections(t *testing.T) {
	body := `{"ref":"refs/heads/main"}`

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		path   string
		reason Reason
		status int
	}{
		{
			name:   "missing host",
			path:   "/signed",
			setup:  func(r *http.Request) { r.Host = "" },
			reason: MalformedRequest,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing peer address",
			path:   "/signed",
			setup:  func(r *http.Request) { r.RemoteAddr = "" },
			reason: InternalError,
			status: http.StatusInternalServerError,
		},
		{
			name:   "unknown route",
			path:   "/unknown",
			setup:  func(r *http.Request) { r.Header.Set("Content-Type", "application/json") },
			reason: RouteNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "route lookup is case-sensitive",
			path:   "/SIGNED",
			setup:  func(r *http.Request) { r.Header.Set("Content-Type", "application/json") },
			reason: RouteNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "missing content type",
			path:   "/signed",
			setup:  func(r *http.Request) {},
			reason: ContentTypeInvalid,
			status: http.StatusBadRequest,
		},
		{
			name:   "content type must match exactly",
			path:   "/signed",
			setup:  func(r *http.Request) { r.Header.Set("Content-Type", "application/json; charset=utf-8") },
			reason: ContentTypeInvalid,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing signature",
			path:   "/signed",
			setup:  func(r *http.Request) { r.Header.Set("Content-Type", "application/json") },
			reason: SignatureMissing,
			status: http.StatusBadRequest,
		},
		{
			name: "wrong signature",
			path: "/signed",
			setup: func(r *http.Request) {
				r.Header.Set("Content-Type", "application/json")
				r.Header.Set(signing.HeaderSignature256, signing.Header("wrong-secret", []byte(body)))
			},
			reason: SignatureInvalid,
			status: http.StatusBadRequest,
		},
		{
			name: "signature without prefix",
			path: "/signed",
			setup: func(r *http.Request) {
				r.Header.Set("Content-Type", "application/json")
				r.Header.Set(signing.HeaderSignature256, signing.Sign(testSecret, []byte(body)))
			},
			reason: SignatureInvalid,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t, Options{})
			req := newRequest(tt.path, body)
			tt.setup(req)

			event, err := v.Validate(req)
			assert.Nil(t, event)
			rej := requireRejection(t, err, tt.reason)
			assert.Equal(t, tt.status, rej.Reason.Status())
		})
	}
}

func TestValidate_BodyTooLarge(t *testing.T) {
	v := newTestValidator(t, Options{MaxBodySize: 8})

	req := newRequest("/open", "this body is too long")
	req.Header.Set("Content-Type", "text/plain")

	_, err := v.Validate(req)
	requireRejection(t, err, MalformedRequest)

	// Unknown length bodies are capped while reading
	req = newRequest("/open", "")
	req.Body = io.NopCloser(bytes.NewReader([]byte("this body is too long")))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "text/plain")

	_, err = v.Validate(req)
	requireRejection(t, err, MalformedRequest)
}

func TestValidate_ClientAddr(t *testing.T) {
	tests := []struct {
		name        string
		behindProxy bool
		headers     map[string]string
		want        string
	}{
		{"direct peer", false, nil, "192.0.2.1"},
		{"forwarded ignored when not behind proxy", false, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.1"},
		{"forwarded-for first entry", true, map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"real ip", true, map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"proxy without headers falls back to peer", true, nil, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t, Options{BehindProxy: tt.behindProxy})
			req := newRequest("/open", "x")
			req.Header.Set("Content-Type", "text/plain")
			for k, val := range tt.headers {
				req.Header.Set(k, val)
			}

			event, err := v.Validate(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.ClientAddr)
		})
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "route_not_found", RouteNotFound.String())
	assert.Equal(t, "reason(99)", Reason(99).String())

	rej := &Rejection{Reason: SignatureInvalid}
	assert.Equal(t, "signature_invalid", rej.Error())
	rej.Detail = "bad"
	assert.Equal(t, "signature_invalid: bad", rej.Error())
}
