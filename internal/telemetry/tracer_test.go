package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("mightyhooks-test", &buf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "test-span")
	assert.Contains(t, buf.String(), "mightyhooks-test")
}

func TestHandlerAndTransport(t *testing.T) {
	backend := httptest.NewServer(Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "test"))
	defer backend.Close()

	client := &http.Client{Transport: Transport(nil)}
	resp, err := client.Get(backend.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestInitTracer_PropagatesTraceContext(t *testing.T) {
	shutdown, err := InitTracer("mightyhooks-test", io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	var traceparent string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.URL, nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: Transport(nil)}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.NotEmpty(t, traceparent, "outbound call must carry the trace context")
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}
