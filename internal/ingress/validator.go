// Package ingress decides whether an inbound hook call is accepted.
//
// Validation runs in a fixed order and stops at the first failure:
// host, client address, route lookup, content type, then signature when
// the route has a secret.
package ingress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"mightyhooks/internal/headers"
	"mightyhooks/internal/hook"
	"mightyhooks/internal/route"
	"mightyhooks/internal/signing"
)

// DefaultMaxBodySize caps inbound payloads when no limit is configured.
const DefaultMaxBodySize = 1 << 20 // 1 MiB

var (
	headerForwardedFor = http.CanonicalHeaderKey("X-Forwarded-For")
	headerRealIP       = http.CanonicalHeaderKey("X-Real-IP")
)

// Options tunes a Validator.
type Options struct {
	// BehindProxy trusts X-Forwarded-For and X-Real-IP for the client address.
	BehindProxy bool
	MaxBodySize int64
}

// Validator checks inbound calls against the route table.
type Validator struct {
	routes      *route.Table
	behindProxy bool
	maxBodySize int64
	logger      *slog.Logger
}

// NewValidator creates a validator over a read-only route table.
func NewValidator(routes *route.Table, opts Options, logger *slog.Logger) *Validator {
	maxBodySize := opts.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	return &Validator{
		routes:      routes,
		behindProxy: opts.BehindProxy,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Validate accepts r or returns a *Rejection. The request body is consumed.
func (v *Validator) Validate(r *http.Request) (*hook.Event, error) {
	// Route key from Host + path
	if r.Host == "" {
		v.logger.Info("hook triggered without host", "remote_addr", r.RemoteAddr)
		return nil, &Rejection{Reason: MalformedRequest, Detail: "missing host"}
	}
	key := route.MakeKey(r.Host, r.URL.Path)

	clientAddr, err := v.clientAddr(r)
	if err != nil {
		v.logger.Error("failed to get client ip", "hook", key, "error", err)
		return nil, &Rejection{Reason: InternalError, RouteKey: key, Detail: err.Error()}
	}

	reject := func(reason Reason, msg string, args ...any) error {
		v.logger.Info(msg, append([]any{"client", clientAddr, "hook", key, "reason", reason.String()}, args...)...)
		return &Rejection{Reason: reason, RouteKey: key, ClientAddr: clientAddr}
	}

	rt, err := v.routes.Get(key)
	if err != nil {
		return nil, reject(RouteNotFound, "triggered nonexistent hook")
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil, reject(ContentTypeInvalid, "triggered hook without content type")
	}
	if contentType != rt.Incoming.ContentType {
		return nil, reject(ContentTypeInvalid, "triggered hook with unexpected content type", "content_type", contentType)
	}

	body, err := v.readBody(r)
	if err != nil {
		return nil, reject(MalformedRequest, "triggered hook with unreadable body", "error", err)
	}

	if rt.Incoming.Secret != "" {
		signature := r.Header.Get(signing.HeaderSignature256)
		if signature == "" {
			return nil, reject(SignatureMissing, "triggered hook without signature")
		}
		if !signing.VerifyHeader(rt.Incoming.Secret, body, signature) {
			return nil, reject(SignatureInvalid, "triggered hook with invalid signature")
		}
	}

	event := &hook.Event{
		ID:         uuid.NewString(),
		RouteKey:   key,
		ClientAddr: clientAddr,
		Route:      rt,
		Body:       hook.Body{Content: body, ContentType: contentType},
		Headers:    headers.Extract(r.Header),
	}

	v.logger.Info("triggered hook successfully",
		"client", clientAddr,
		"hook", key,
		"event_id", event.ID,
		"destinations", len(rt.Destinations))

	return event, nil
}

// readBody reads the whole body, failing when it exceeds the size limit.
func (v *Validator) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	if r.ContentLength > v.maxBodySize {
		return nil, fmt.Errorf("payload of %d bytes exceeds limit of %d", r.ContentLength, v.maxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, v.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > v.maxBodySize {
		return nil, fmt.Errorf("payload exceeds limit of %d bytes", v.maxBodySize)
	}
	return body, nil
}

// clientAddr resolves the caller's address. Behind a proxy the first
// X-Forwarded-For entry wins, then X-Real-IP, then the peer.
func (v *Validator) clientAddr(r *http.Request) (string, error) {
	if v.behindProxy {
		if fwd := r.Header.Get(headerForwardedFor); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip, nil
			}
		}
		if ip := strings.TrimSpace(r.Header.Get(headerRealIP)); ip != "" {
			return ip, nil
		}
	}

	return peerAddr(r.RemoteAddr)
}

func peerAddr(remote string) (string, error) {
	if remote == "" {
		return "", errors.New("no peer address")
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		// RemoteAddr without a port
		return remote, nil
	}
	if host == "" {
		return "", fmt.Errorf("no host in peer address %q", remote)
	}
	return host, nil
}
