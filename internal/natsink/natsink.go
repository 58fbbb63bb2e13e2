// Package natsink publishes completed spans as JSON messages on NATS.
//
// Each span is published on
//
//	{prefix}.{function}
//
// where characters that are not valid in a subject token are replaced with
// underscores.
package natsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "wasmobs.spans"

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	Token         string
	ConnectWait   time.Duration
}

// Backend publishes spans to NATS.
type Backend struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ exporter.Backend = (*Backend)(nil)

// New wraps an existing connection. The backend closes nc on Shutdown.
func New(nc *nats.Conn, prefix string, logger *zap.Logger) *Backend {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{nc: nc, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Connect dials cfg.URL and returns a backend on the new connection.
func Connect(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("wasmobs"),
		nats.MaxReconnects(-1),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.ConnectWait > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectWait))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return New(nc, cfg.SubjectPrefix, logger), nil
}

// NewBackendFactory returns a factory that connects on the exporter goroutine.
func NewBackendFactory(cfg Config, logger *zap.Logger) exporter.BackendFactory {
	return func(context.Context) (exporter.Backend, error) {
		return Connect(cfg, logger)
	}
}

// Subject returns the subject a span for function is published on.
func (b *Backend) Subject(function string) string {
	return b.prefix + "." + subjectToken(function)
}

// Export publishes s as JSON.
func (b *Backend) Export(_ context.Context, s span.Span) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal span: %w", err)
	}

	if err := b.nc.Publish(b.Subject(s.FunctionName), data); err != nil {
		return fmt.Errorf("publish span: %w", err)
	}
	return nil
}

// Shutdown flushes buffered messages and closes the connection.
func (b *Backend) Shutdown(ctx context.Context) error {
	defer b.nc.Close()

	var err error
	if _, ok := ctx.Deadline(); ok {
		err = b.nc.FlushWithContext(ctx)
	} else {
		err = b.nc.Flush()
	}
	if err != nil {
		b.logger.Warn("nats flush failed", zap.Error(err))
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
