package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

// ErrResponseTooLarge is reported when a downstream body exceeds the limit.
var ErrResponseTooLarge = errors.New("downstream response exceeds size limit")

const requestIDHeader = "X-Request-Id"

// hopHeaders apply to a single connection and are not relayed back.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configures a Forwarder.
type Options struct {
	// Client is shared by all requests; see NewClient.
	Client *http.Client

	// Timeout bounds each downstream call, body read included.
	Timeout time.Duration

	// MaxResponseBytes bounds a buffered downstream body.
	MaxResponseBytes int64

	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Forwarder performs downstream calls. It is safe for concurrent use.
type Forwarder struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// New creates a Forwarder.
func New(opts Options) *Forwarder {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		client:   client,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxResponseBytes,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Forward replays in against targetURL and classifies what comes back.
//
// The call runs under ctx with the configured timeout; ctx is normally the
// inbound request's context, so a caller that disconnects cancels the
// downstream call too. Inbound headers are sent unmodified, plus an
// X-Request-Id when absent and the W3C trace context.
func (f *Forwarder) Forward(ctx context.Context, in *http.Request, target routing.Target, targetURL string) Result {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(in.Header))
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerProxy, "proxy.Forward",
		attribute.String(telemetry.AttrTarget, string(target)),
		attribute.String("http.method", in.Method),
	)
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	result := f.do(ctx, in, targetURL)
	elapsed := time.Since(start)

	f.metrics.ObserveForward(string(target), string(result.Outcome), elapsed)
	span.SetAttributes(attribute.String(telemetry.AttrOutcome, string(result.Outcome)))
	if result.StatusCode != 0 {
		span.SetAttributes(attribute.Int(telemetry.AttrStatusCode, result.StatusCode))
	}

	fields := []zap.Field{
		zap.String("target", string(target)),
		zap.String("method", in.Method),
		zap.String("url", targetURL),
		zap.Duration("duration", elapsed),
	}
	switch result.Outcome {
	case OutcomeTransportFailure:
		telemetry.RecordError(span, result.Err)
		f.logger.Error("downstream call failed", append(fields, zap.Error(result.Err))...)
	case OutcomeUpstreamError, OutcomeUpstreamErrorNoBody:
		telemetry.AddEvent(span, "downstream.error")
		f.logger.Warn("downstream returned error status",
			append(fields,
				zap.Int("status", result.StatusCode),
				zap.String("content_type", result.ContentType()),
				zap.Int("body_bytes", len(result.Body)),
			)...)
	case OutcomeSuccess:
		f.logger.Debug("downstream call completed", append(fields, zap.Int("status", result.StatusCode))...)
	}

	return result
}

func (f *Forwarder) do(ctx context.Context, in *http.Request, targetURL string) Result {
	out, err := http.NewRequestWithContext(ctx, in.Method, targetURL, in.Body)
	if err != nil {
		return Result{Outcome: OutcomeTransportFailure, Err: fmt.Errorf("build downstream request: %w", err)}
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))

	resp, err := f.client.Do(out)
	if err != nil {
		return Result{Outcome: OutcomeTransportFailure, Err: classifyTransportError(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := f.readBody(resp.Body)
	if err != nil {
		if !errors.Is(err, ErrResponseTooLarge) {
			err = classifyTransportError(ctx, err)
		}
		return Result{Outcome: OutcomeTransportFailure, StatusCode: resp.StatusCode, Err: err}
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Del("Content-Length")

	result := Result{StatusCode: resp.StatusCode, Header: header, Body: body}
	switch {
	case resp.StatusCode < http.StatusBadRequest:
		result.Outcome = OutcomeSuccess
	case len(bytes.TrimSpace(body)) > 0:
		result.Outcome = OutcomeUpstreamError
	default:
		result.Outcome = OutcomeUpstreamErrorNoBody
		result.Body = nil
	}
	return result
}

func (f *Forwarder) readBody(body io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, f.maxBytes)
	}
	return data, nil
}

// classifyTransportError names the common failure modes for logs.
func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("downstream timeout: %w", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("caller canceled: %w", err)
	default:
		return fmt.Errorf("downstream unreachable: %w", err)
	}
}
