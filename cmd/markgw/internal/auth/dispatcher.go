package auth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

// Strategy identifies which identity strategy handles a request.
type Strategy string

const (
	// StrategyReal verifies signed tokens.
	StrategyReal Strategy = "real"
	// StrategyMock returns the fixed development session.
	StrategyMock Strategy = "mock"
)

// Mode is the process-wide input to the mock-auth gate. It comes from
// configuration and never from the request.
type Mode struct {
	// Production is true when the execution mode is production.
	Production bool
	// MockAuthEnabled is the explicit opt-in flag.
	MockAuthEnabled bool
}

// SelectStrategy is the two-factor mock-auth gate: the mock strategy is
// chosen only for a non-production mode with the flag explicitly enabled.
// In production the flag is ignored.
func SelectStrategy(mode Mode) Strategy {
	if !mode.Production && mode.MockAuthEnabled {
		return StrategyMock
	}
	return StrategyReal
}

// DispatcherOptions wires a Dispatcher.
type DispatcherOptions struct {
	Mode Mode

	// Cookie and Bearer are the real strategy's two variants. Either may be
	// nil when no key material is configured; such requests are rejected.
	Cookie Authenticator
	Bearer Authenticator

	// Mock defaults to MockAuthenticator.
	Mock Authenticator

	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Dispatcher chooses between the real and mock strategies per request and
// reduces every outcome to a session or ErrUnauthenticated.
type Dispatcher struct {
	mode    Mode
	cookie  Authenticator
	bearer  Authenticator
	mock    Authenticator
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	mock := opts.Mock
	if mock == nil {
		mock = MockAuthenticator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		mode:    opts.Mode,
		cookie:  opts.Cookie,
		bearer:  opts.Bearer,
		mock:    mock,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Strategy reports the strategy the gate currently selects.
func (d *Dispatcher) Strategy() Strategy {
	return SelectStrategy(d.mode)
}

// Authenticate resolves the caller for a route group using method.
//
// Returns:
//   - (session, nil) on success
//   - (nil, nil) for MethodNone; no identity is required
//   - (nil, err) with errors.Is(err, ErrUnauthenticated) on rejection
//
// Rejection is an ordinary outcome; the error only carries the reason for logs.
func (d *Dispatcher) Authenticate(ctx context.Context, req AuthRequest, method Method) (*UserSession, error) {
	if method == MethodNone {
		return nil, nil
	}

	// The gate is re-evaluated on every call. Mode is immutable, so this
	// is equivalent to deciding once at startup.
	strategy := SelectStrategy(d.mode)

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerAuth, "auth.Authenticate",
		attribute.String(telemetry.AttrAuthMethod, string(method)),
		attribute.String(telemetry.AttrAuthStrategy, string(strategy)),
	)
	defer span.End()

	session, err := d.authenticate(ctx, req, method, strategy)
	d.metrics.ObserveAuth(string(method), string(strategy), err == nil)
	if err != nil {
		telemetry.AddEvent(span, "authentication.failed")
		telemetry.RecordError(span, err)
		d.logger.Debug("authentication rejected",
			zap.String("method", string(method)),
			zap.String("strategy", string(strategy)),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String(telemetry.AttrUserRole, string(session.Role)))
	telemetry.AddEvent(span, "authentication.succeeded")
	return session, nil
}

func (d *Dispatcher) authenticate(ctx context.Context, req AuthRequest, method Method, strategy Strategy) (*UserSession, error) {
	var authenticator Authenticator
	switch {
	case strategy == StrategyMock:
		authenticator = d.mock
	case method == MethodCookie:
		authenticator = d.cookie
	case method == MethodBearer:
		authenticator = d.bearer
	default:
		return nil, fmt.Errorf("%w: unsupported auth method %q", ErrUnauthenticated, method)
	}
	if authenticator == nil {
		return nil, fmt.Errorf("%w: no %s authenticator configured", ErrUnauthenticated, method)
	}

	session, err := authenticator.Authenticate(ctx, req)
	switch {
	case err != nil && errors.Is(err, ErrUnauthenticated):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	case session == nil:
		return nil, fmt.Errorf("%w: no %s credentials", ErrUnauthenticated, method)
	}
	return session, nil
}
