// Package live serves a reactive component tree over HTTP and
// WebSocket. Each WebSocket connection gets its own session: the
// component template is mounted into a fresh document, and every
// update pass streams the resulting patch set to the client as a
// binary frame. Plain HTTP requests get a serialized snapshot of a
// fresh render.
package live

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loom-ui/loom/pkg/snapshot"
)

// Config holds the live server configuration.
type Config struct {
	// Address is the listen address.
	Address string

	// Logger receives structured server logs.
	Logger *slog.Logger

	// Store, when set, persists a snapshot of each session's tree on
	// disconnect so a returning client can hydrate against it.
	Store snapshot.Store

	// Registry collects the server's Prometheus metrics and backs the
	// /metrics endpoint.
	Registry *prometheus.Registry

	// CheckOrigin validates WebSocket upgrade origins.
	CheckOrigin func(*http.Request) bool

	// TracerName names the OpenTelemetry tracer for request spans.
	TracerName string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout applies to the HTTP server.
	ReadHeaderTimeout time.Duration
}

// Option configures the server.
type Option func(*Config)

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(c *Config) { c.Address = addr }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithStore sets the snapshot store used across reconnects.
func WithStore(s snapshot.Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = r }
}

// WithCheckOrigin sets the WebSocket origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) { c.CheckOrigin = fn }
}

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) { c.TracerName = name }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

func defaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		Logger:            slog.Default(),
		Registry:          prometheus.NewRegistry(),
		TracerName:        "loom",
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
