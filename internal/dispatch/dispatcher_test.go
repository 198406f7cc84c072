package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mightyhooks/internal/hook"
	"mightyhooks/internal/reword"
	"mightyhooks/internal/route"
	"mightyhooks/internal/signing"
)

type received struct {
	body    string
	headers http.Header
}

// captureServer records every request it receives.
type captureServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []received
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.requests = append(cs.requests, received{body: string(body), headers: r.Header.Clone()})
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) received() []received {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]received, len(cs.requests))
	copy(out, cs.requests)
	return out
}

// refusedURL returns the URL of a server that is no longer listening.
func refusedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (l *outcomeLog) RecordDelivery(_ context.Context, o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

func (l *outcomeLog) byDestination() map[string]Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Outcome, len(l.outcomes))
	for _, o := range l.outcomes {
		out[o.Destination] = o
	}
	return out
}

func newEvent(dests ...route.Destination) *hook.Event {
	return &hook.Event{
		ID:       "evt-1",
		RouteKey: "hooks.example.com/github",
		Route:    &route.Route{Key: "hooks.example.com/github", Destinations: dests},
		Body:     hook.Body{Content: []byte(`{"a":1,"ref":"refs/heads/main"}`), ContentType: "application/json"},
		Headers: map[string]string{
			"content-type":        "application/json",
			"x-github-event":      "push",
			"x-hub-signature-256": "sha256=inbound",
			"x-secret-internal":   "do-not-forward",
		},
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	first := newCaptureServer(t, http.StatusOK)
	third := newCaptureServer(t, http.StatusAccepted)
	refused := refusedURL(t)

	log := &outcomeLog{}
	d := New(Options{Recorders: []Recorder{log}}, testLogger())

	event := newEvent(
		route.Destination{URL: first.URL, Secret: "first-secret", KeepHeaders: []string{"X-GitHub-Event"}},
		route.Destination{URL: refused, Secret: "second-secret"},
		route.Destination{URL: third.URL, Secret: "third-secret"},
	)

	d.Dispatch(context.Background(), event)

	for _, tc := range []struct {
		srv    *captureServer
		secret string
	}{{first, "first-secret"}, {third, "third-secret"}} {
		reqs := tc.srv.received()
		require.Len(t, reqs, 1)
		assert.Equal(t, string(event.Body.Content), reqs[0].body)
		assert.Equal(t, "application/json", reqs[0].headers.Get("Content-Type"))
		assert.True(t, signing.VerifyHeader(tc.secret, []byte(reqs[0].body), reqs[0].headers.Get(signing.HeaderSignature256)))
	}

	outcomes := log.byDestination()
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[first.URL].Success())
	assert.True(t, outcomes[third.URL].Success())
	assert.False(t, outcomes[refused].Success())
	assert.Equal(t, StageDeliver, outcomes[refused].Stage)
	assert.Error(t, outcomes[refused].Err)
}

func TestDispatch_HeaderFiltering(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	d := New(Options{}, testLogger())

	event := newEvent(route.Destination{
		URL:         srv.URL,
		KeepHeaders: []string{"x-github-event", "X-Hub-Signature-256", "X-Missing"},
	})
	d.Dispatch(context.Background(), event)

	reqs := srv.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "push", reqs[0].headers.Get("X-GitHub-Event"))
	assert.Empty(t, reqs[0].headers.Get(signing.HeaderSignature256), "inbound signature must not be relayed")
	assert.Empty(t, reqs[0].headers.Get("X-Secret-Internal"))
}

func TestDispatch_RewordPerDestination(t *testing.T) {
	reworded := newCaptureServer(t, http.StatusOK)
	plain := newCaptureServer(t, http.StatusOK)
	d := New(Options{}, testLogger())

	event := newEvent(
		route.Destination{
			URL:         reworded.URL,
			Secret:      "reword-secret",
			KeepHeaders: []string{"X-GitHub-Event"},
			Reword: &route.Reword{
				ContentType: "text/plain",
				Template:    `{{ index .headers "X-Github-Event" }} on {{ .json.ref }}`,
			},
		},
		route.Destination{URL: plain.URL},
	)
	d.Dispatch(context.Background(), event)

	reqs := reworded.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "push on refs/heads/main", reqs[0].body)
	assert.Equal(t, "text/plain", reqs[0].headers.Get("Content-Type"))
	assert.True(t, signing.VerifyHeader("reword-secret", []byte("push on refs/heads/main"), reqs[0].headers.Get(signing.HeaderSignature256)),
		"signature must cover the reworded body")

	reqs = plain.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, string(event.Body.Content), reqs[0].body, "siblings see the original body")
	assert.Equal(t, "application/json", reqs[0].headers.Get("Content-Type"))
	assert.Empty(t, reqs[0].headers.Get(signing.HeaderSignature256))
}

func TestDispatch_RewordFailureIsIsolated(t *testing.T) {
	broken := newCaptureServer(t, http.StatusOK)
	healthy := newCaptureServer(t, http.StatusOK)
	log := &outcomeLog{}
	d := New(Options{Recorders: []Recorder{log}}, testLogger())

	event := newEvent(
		route.Destination{URL: broken.URL, Reword: &route.Reword{ContentType: "text/plain", Template: "{{ .json.nope }}"}},
		route.Destination{URL: healthy.URL},
	)
	d.Dispatch(context.Background(), event)

	assert.Empty(t, broken.received())
	assert.Len(t, healthy.received(), 1)

	outcome := log.byDestination()[broken.URL]
	assert.Equal(t, StageReword, outcome.Stage)
	assert.True(t, errors.Is(outcome.Err, reword.ErrTemplate))
}

func TestDispatch_RedirectNotFollowed(t *testing.T) {
	target := newCaptureServer(t, http.StatusOK)
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	t.Cleanup(redirector.Close)

	log := &outcomeLog{}
	d := New(Options{Recorders: []Recorder{log}}, testLogger())
	d.Dispatch(context.Background(), newEvent(route.Destination{URL: redirector.URL}))

	assert.Empty(t, target.received())
	outcome := log.byDestination()[redirector.URL]
	assert.Equal(t, http.StatusTemporaryRedirect, outcome.StatusCode)
	assert.True(t, outcome.Success())
}

func TestDispatch_ErrorStatus(t *testing.T) {
	srv := newCaptureServer(t, http.StatusInternalServerError)
	log := &outcomeLog{}
	d := New(Options{Recorders: []Recorder{log}}, testLogger())

	d.Dispatch(context.Background(), newEvent(route.Destination{URL: srv.URL}))

	outcome := log.byDestination()[srv.URL]
	assert.False(t, outcome.Success())
	assert.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
	assert.True(t, errors.Is(outcome.Err, ErrUnexpectedStatus))
	assert.Equal(t, "failure", outcome.Result())
}

func TestDispatch_WaitsForAllDeliveries(t *testing.T) {
	var done atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		done.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(slow.Close)

	d := New(Options{}, testLogger())
	d.Dispatch(context.Background(), newEvent(
		route.Destination{URL: slow.URL + "/1"},
		route.Destination{URL: slow.URL + "/2"},
		route.Destination{URL: slow.URL + "/3"},
	))

	assert.Equal(t, int32(3), done.Load())
}

func TestDispatch_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		blocked.Close()
	})

	log := &outcomeLog{}
	d := New(Options{Recorders: []Recorder{log}}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Dispatch(ctx, newEvent(route.Destination{URL: blocked.URL}))

	outcome := log.byDestination()[blocked.URL]
	assert.False(t, outcome.Success())
	assert.True(t, errors.Is(outcome.Err, context.DeadlineExceeded))
}

func TestDispatch_MaxConcurrent(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := New(Options{MaxConcurrent: 1}, testLogger())
	var dests []route.Destination
	for i := 0; i < 4; i++ {
		dests = append(dests, route.Destination{URL: srv.URL})
	}
	d.Dispatch(context.Background(), newEvent(dests...))

	assert.Equal(t, int32(1), peak.Load())
}

func TestPrepare_DoesNotMutateEvent(t *testing.T) {
	d := New(Options{}, testLogger())
	event := newEvent()
	original := string(event.Body.Content)

	delivery, err := d.Prepare(event, route.Destination{
		URL:         "http://example.invalid",
		KeepHeaders: []string{"x-github-event"},
		Reword:      &route.Reword{ContentType: "text/plain", Template: "replaced"},
	})
	require.NoError(t, err)

	assert.Equal(t, "replaced", string(delivery.Body.Content))
	assert.Equal(t, original, string(event.Body.Content))
	assert.Equal(t, "application/json", event.Body.ContentType)
	assert.Len(t, event.Headers, 4)
	assert.Empty(t, delivery.Signature)
}

func TestNewClient_NoRedirects(t *testing.T) {
	client := NewClient(0, nil)
	assert.Equal(t, DefaultTimeout, client.Timeout)
	assert.ErrorIs(t, client.CheckRedirect(nil, nil), http.ErrUseLastResponse)
}

func TestDispatch_RecorderFunc(t *testing.T) {
	srv := newCaptureServer(t, http.StatusNoContent)

	var mu sync.Mutex
	var got []Outcome
	var ctxErr error
	recorder := RecorderFunc(func(ctx context.Context, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, o)
		ctxErr = ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := New(Options{Recorders: []Recorder{recorder}}, testLogger())
	d.Dispatch(ctx, newEvent(route.Destination{URL: srv.URL}))
	cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "evt-1", got[0].EventID)
	assert.Equal(t, http.StatusNoContent, got[0].StatusCode)
	assert.True(t, got[0].Success())
	assert.NoError(t, ctxErr)
}
