package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
	"github.com/tobiashenkel/converse-proxy/internal/observability/middleware"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultMaxRequestBytes = 10 << 20 // 10 MiB
	DefaultPingInterval    = 15 * time.Second
)

// ReadinessChecker reports whether the application is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Options configures the proxy server.
type Options struct {
	Invoker   bedrock.Invoker
	Readiness ReadinessChecker

	// InferenceProfilePrefixes are stripped from model ids for backend
	// operations that only accept foundation model ids.
	InferenceProfilePrefixes []string

	// BetaWhitelist lists the anthropic-beta flags forwarded to the backend.
	BetaWhitelist []string

	MaxRequestBytes int64
	PingInterval    time.Duration
}

// Proxy is the HTTP server exposing the Messages and Chat Completions
// protocols on top of the Converse backend.
type Proxy struct {
	server *http.Server
}

// New creates a proxy server with all routes and middlewares wired up.
func New(opts Options) (*Proxy, error) {
	if opts.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if opts.Readiness == nil {
		return nil, errors.New("readiness checker is required")
	}
	if opts.MaxRequestBytes == 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}

	r := chi.NewRouter()
	r.Use(
		Recovery,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		RequestSizeLimit(opts.MaxRequestBytes),
	)

	r.Get("/health/live", livenessHandler())
	r.Get("/health/ready", readinessHandler(opts.Readiness))

	r.Method(http.MethodPost, "/v1/messages", &MessagesHandler{
		Invoker:       opts.Invoker,
		BetaWhitelist: opts.BetaWhitelist,
		PingInterval:  opts.PingInterval,
	})
	r.Method(http.MethodPost, "/v1/messages/count_tokens", &CountTokensHandler{
		Invoker:                  opts.Invoker,
		InferenceProfilePrefixes: opts.InferenceProfilePrefixes,
	})
	r.Method(http.MethodPost, "/v1/chat/completions", &ChatCompletionsHandler{
		Invoker:      opts.Invoker,
		PingInterval: opts.PingInterval,
	})

	return &Proxy{
		server: &http.Server{
			Handler: r,
			// No WriteTimeout: responses are long-lived event streams.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start begins listening on addr and serves requests in the background.
// The returned channel receives the server's terminal error, if any, and is
// closed when the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	slog.InfoContext(ctx, "proxy server listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
