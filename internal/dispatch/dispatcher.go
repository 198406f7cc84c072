package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"mightyhooks/internal/headers"
	"mightyhooks/internal/hook"
	"mightyhooks/internal/reword"
	"mightyhooks/internal/route"
	"mightyhooks/internal/signing"
)

const (
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 30 * time.Second

	// maxResponseDrain caps how much of a response body is read back so the
	// connection can be reused.
	maxResponseDrain = 64 * 1024

	userAgent = "Mighty-Hooks"
)

// ErrUnexpectedStatus is reported for responses outside 2xx/3xx.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Options configures a Dispatcher.
type Options struct {
	// Client is shared by all deliveries. Nil selects NewClient(DefaultTimeout, nil).
	Client *http.Client
	// Engine rewords bodies. Nil selects the text/template engine.
	Engine *reword.Engine
	// MaxConcurrent bounds outbound calls across all events. Zero is unlimited.
	MaxConcurrent int64
	Recorders     []Recorder
}

// Dispatcher fans accepted events out to their destinations.
type Dispatcher struct {
	client    *http.Client
	engine    *reword.Engine
	sem       *semaphore.Weighted
	recorders []Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewClient returns an HTTP client that never follows redirects. A nil
// transport uses http.DefaultTransport.
func NewClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// New creates a dispatcher.
func New(opts Options, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		client:    opts.Client,
		engine:    opts.Engine,
		recorders: opts.Recorders,
		logger:    logger,
		tracer:    otel.Tracer("mightyhooks/dispatch"),
	}
	if d.client == nil {
		d.client = NewClient(DefaultTimeout, nil)
	}
	if d.engine == nil {
		d.engine = reword.New(nil)
	}
	if opts.MaxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return d
}

// Dispatch delivers event to every destination of its route and returns
// once all deliveries have finished. It never fails as a whole.
func (d *Dispatcher) Dispatch(ctx context.Context, event *hook.Event) {
	var g errgroup.Group

	for _, dest := range event.Route.Destinations {
		g.Go(func() error {
			outcome := d.deliver(ctx, event, dest)
			d.record(ctx, outcome)
			return nil
		})
	}

	_ = g.Wait()
}

// Prepare builds the outbound request for dest: filtered headers, optional
// reworded body, then the signature over the final body.
func (d *Dispatcher) Prepare(event *hook.Event, dest route.Destination) (*Delivery, error) {
	delivery := &Delivery{
		URL:     dest.URL,
		Headers: headers.Filter(event.Headers, dest.KeepHeaders),
		Body:    event.Body,
	}

	if dest.Reword != nil {
		body, err := d.engine.Reword(*dest.Reword, event.Body, delivery.Headers)
		if err != nil {
			return nil, err
		}
		delivery.Body = body
	}

	if dest.Secret != "" {
		delivery.Signature = signing.Header(dest.Secret, delivery.Body.Content)
	}

	return delivery, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event *hook.Event, dest route.Destination) Outcome {
	ctx, span := d.tracer.Start(ctx, "dispatch.deliver", trace.WithAttributes(
		attribute.String("hook.route_key", event.RouteKey),
		attribute.String("hook.event_id", event.ID),
		attribute.String("hook.destination", dest.URL),
	))
	defer span.End()

	outcome := Outcome{
		EventID:     event.ID,
		RouteKey:    event.RouteKey,
		Destination: dest.URL,
		Stage:       StageReword,
	}
	logger := d.logger.With("hook", event.RouteKey, "event_id", event.ID, "destination", dest.URL)

	delivery, err := d.Prepare(event, dest)
	if err != nil {
		outcome.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "reword failed")
		logger.Error("failed to reword webhook body", "error", err)
		return outcome
	}

	outcome.Stage = StageDeliver
	start := time.Now()
	outcome.StatusCode, outcome.Err = d.send(ctx, delivery)
	outcome.Duration = time.Since(start)

	span.SetAttributes(attribute.Int("http.response.status_code", outcome.StatusCode))
	if !outcome.Success() {
		if outcome.Err == nil {
			outcome.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, outcome.StatusCode)
		}
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "delivery failed")
		logger.Error("failed to dispatch webhook",
			"status", outcome.StatusCode,
			"duration_ms", outcome.Duration.Milliseconds(),
			"error", outcome.Err)
		return outcome
	}

	logger.Info("dispatched webhook",
		"status", outcome.StatusCode,
		"duration_ms", outcome.Duration.Milliseconds())
	return outcome
}

// send POSTs the delivery and returns the response status code.
func (d *Dispatcher) send(ctx context.Context, delivery *Delivery) (int, error) {
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return 0, fmt.Errorf("waiting for delivery slot: %w", err)
		}
		defer d.sem.Release(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Body.Content))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	for name, value := range delivery.Headers {
		req.Header.Set(name, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if delivery.Body.ContentType != "" {
		req.Header.Set("Content-Type", delivery.Body.ContentType)
	}
	if delivery.Signature != "" {
		req.Header.Set(signing.HeaderSignature256, delivery.Signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	return resp.StatusCode, nil
}

// record runs after the delivery context may have expired, so recorders get
// a context that is never cancelled.
func (d *Dispatcher) record(ctx context.Context, outcome Outcome) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range d.recorders {
		r.RecordDelivery(ctx, outcome)
	}
}
