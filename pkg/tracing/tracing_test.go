package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDisabledManagerReturnsUsableTracer(t *testing.T) {
	tm, err := NewTracingManager(types.TracingConfig{Enabled: false}, "test", newTestLogger())
	require.NoError(t, err)
	require.NotNil(t, tm.GetTracer())

	_, span := tm.GetTracer().Start(context.Background(), "noop")
	span.End()

	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracingManager(types.TracingConfig{
		Enabled:     true,
		ServiceName: "test",
		Exporter:    "carrier-pigeon",
		SampleRate:  1,
	}, "test", newTestLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}

func TestOTLPManagerShutdown(t *testing.T) {
	tm, err := NewTracingManager(types.TracingConfig{
		Enabled:      true,
		ServiceName:  "test",
		Exporter:     "otlp",
		Endpoint:     "http://127.0.0.1:1/v1/traces",
		SampleRate:   0,
		BatchTimeout: "10ms",
	}, "test", newTestLogger())
	require.NoError(t, err)

	require.NotNil(t, tm.provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tm.Shutdown(ctx)
}

func TestResourceDescribesService(t *testing.T) {
	tm := &TracingManager{
		config:      types.TracingConfig{ServiceName: "firebase-output", ServiceVersion: "v1.2.3"},
		environment: "staging",
		logger:      newTestLogger(),
	}

	res, err := tm.newResource()
	require.NoError(t, err)

	attrs := make(map[string]string)
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "firebase-output", attrs["service.name"])
	assert.Equal(t, "v1.2.3", attrs["service.version"])
	assert.Equal(t, "staging", attrs["deployment.environment.name"])
	assert.Contains(t, attrs, "telemetry.sdk.language")
}

func TestTraceHandlerRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	var traceID string
	handler := TraceHandler(tracer, "ingest")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = ExtractTraceInfo(r.Context())
		assert.NotNil(t, LogFields(r.Context()))
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/events", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.NotEmpty(t, traceID)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ingest", spans[0].Name())
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, failed := provider.Tracer("test").Start(context.Background(), "failed")
	RecordError(failed, errors.New("boom"))
	failed.End()

	_, ok := provider.Tracer("test").Start(context.Background(), "ok")
	RecordError(ok, nil)
	ok.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestLogFieldsWithoutSpan(t *testing.T) {
	assert.Nil(t, LogFields(context.Background()))
}
