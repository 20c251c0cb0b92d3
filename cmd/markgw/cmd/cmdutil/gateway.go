package cmdutil

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/config"
	"github.com/markplatform/gateway/cmd/markgw/internal/proxy"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
	"github.com/markplatform/gateway/cmd/markgw/internal/server"
	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

// GatewayOptions controls how the CLI constructs the gateway components.
type GatewayOptions struct {
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// Gateway bundles the components the router needs so commands other than
// serve (e.g. routes) can reuse the same wiring.
type Gateway struct {
	Table      *routing.Table
	Resolver   *routing.Resolver
	Dispatcher *auth.Dispatcher
	Forwarder  *proxy.Forwarder
}

// NewGateway centralizes gateway construction for CLI commands.
// It resolves targets, loads the route table, builds the identity
// strategies and the shared downstream client.
func NewGateway(cfg *config.Config, opts GatewayOptions) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	targets, err := routing.NewTargets(cfg.MarkAPIEndpoint, cfg.LTICredentialManagerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve targets: %w", err)
	}

	table, err := loadTable(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg, opts.Metrics, logger)
	if err != nil {
		return nil, err
	}

	forwarder := proxy.New(proxy.Options{
		Client:           proxy.NewClient(cfg.Forward),
		Timeout:          cfg.Forward.Timeout,
		MaxResponseBytes: cfg.Forward.MaxResponseBytes,
		Metrics:          opts.Metrics,
		Logger:           logger,
	})

	return &Gateway{
		Table:      table,
		Resolver:   routing.NewResolver(targets),
		Dispatcher: dispatcher,
		Forwarder:  forwarder,
	}, nil
}

// RouterOptions returns router options pre-filled with the bundle.
func (g *Gateway) RouterOptions() server.RouterOptions {
	return server.RouterOptions{
		Table:      g.Table,
		Resolver:   g.Resolver,
		Dispatcher: g.Dispatcher,
		Forwarder:  g.Forwarder,
	}
}

func loadTable(path string) (*routing.Table, error) {
	if path == "" {
		table, err := routing.NewTable(routing.DefaultGroups())
		if err != nil {
			return nil, fmt.Errorf("failed to build default route table: %w", err)
		}
		return table, nil
	}
	table, err := routing.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes file: %w", err)
	}
	return table, nil
}

func newDispatcher(cfg *config.Config, metrics *telemetry.Metrics, logger *zap.Logger) (*auth.Dispatcher, error) {
	dopts := auth.DispatcherOptions{
		Mode: auth.Mode{
			Production:      cfg.IsProduction(),
			MockAuthEnabled: cfg.MockAuthEnabled,
		},
		Metrics: metrics,
		Logger:  logger,
	}

	if cfg.Auth.JWTSecret != "" || cfg.Auth.JWKSFile != "" {
		vopts := auth.VerifierOptions{
			Secret: []byte(cfg.Auth.JWTSecret),
			Leeway: cfg.Auth.Leeway,
		}
		if cfg.Auth.JWKSFile != "" {
			keys, err := auth.LoadJWKS(cfg.Auth.JWKSFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load JWK set: %w", err)
			}
			vopts.JWKS = keys
		}
		verifier, err := auth.NewTokenVerifier(vopts)
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		dopts.Cookie = auth.NewCookieAuthenticator(cfg.Auth.CookieName, verifier)
		dopts.Bearer = auth.NewBearerAuthenticator(verifier)
	}

	return auth.NewDispatcher(dopts), nil
}
