// Package notify is an optional consumer of enforcement_action events: a
// NATS publisher that republishes them onto an external subject so
// Discord/Telegram/logging bridges can subscribe without coupling to this
// process's internal Event Bus. It is a single plain-NATS publish path,
// not a second event bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/eventbus"
)

// Config configures the optional NATS publisher; the supervisor takes it
// from Options.NotifyCfg. With Enabled false (the default), New returns a
// nil Publisher.
type Config struct {
	Enabled           bool
	URLs              []string
	Subject           string
	ConnectionTimeout time.Duration
	MaxReconnects     int
	ReconnectWait     time.Duration
}

// DefaultConfig returns timeouts sized for a single best-effort publisher
// rather than a durable stream.
func DefaultConfig() Config {
	return Config{
		URLs:              []string{nats.DefaultURL},
		Subject:           "riskguard.enforcement_action",
		ConnectionTimeout: 5 * time.Second,
		MaxReconnects:     10,
		ReconnectWait:     time.Second,
	}
}

// Publisher republishes enforcement_action events onto a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// New connects to NATS and subscribes to the internal Event Bus's
// enforcement_action subject. Returns (nil, nil) if cfg.Enabled is false.
func New(cfg Config, bus *eventbus.Bus, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("riskguard-notify"),
		nats.Timeout(cfg.ConnectionTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	}
	url := nats.DefaultURL
	if len(cfg.URLs) > 0 {
		url = joinURLs(cfg.URLs)
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	p := &Publisher{conn: conn, subject: cfg.Subject, logger: logger}
	bus.Subscribe("notify_nats", domain.SubjectEnforcementAction, p.handle)
	return p, nil
}

func joinURLs(urls []string) string {
	out := urls[0]
	for _, u := range urls[1:] {
		out += "," + u
	}
	return out
}

func (p *Publisher) handle(ctx context.Context, event *domain.RiskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling enforcement event for NATS: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Error("failed to publish enforcement event to NATS", zap.Error(err))
		return err
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}
