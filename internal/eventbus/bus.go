// Package eventbus is the in-process event bus: an at-most-once,
// non-persistent pub/sub between the event router, the rule engine, and
// the enforcement executor, in which one subscriber's handler panicking or
// erroring never prevents another subscriber on the same subject from
// receiving the message.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/domain"
)

// Handler processes one RiskEvent delivered on a subject. A returned error
// is logged by the bus; it never blocks delivery to other handlers.
type Handler func(ctx context.Context, event *domain.RiskEvent) error

// Bus is the Event Bus.
type Bus struct {
	pubSub *gochannel.GoChannel
	router *message.Router
	logger *zap.Logger
}

// New creates a Bus. Messages are not persisted — a subscriber that is not
// running when an event is published simply never sees it — and are
// delivered to each subscriber of a subject independently.
func New(logger *zap.Logger) (*Bus, error) {
	wmLogger := watermill.NewStdLoggerWithOut(zapWriter{logger}, false, false)

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          false,
		},
		wmLogger,
	)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	return &Bus{pubSub: pubSub, router: router, logger: logger}, nil
}

// Run starts the router's dispatch loop; it blocks until ctx is cancelled
// or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Close stops the router and the underlying pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubSub.Close()
}

// Publish sends event on subject. Publish never blocks on subscriber
// processing.
func (b *Bus) Publish(subject string, event *domain.RiskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling risk event: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set("event_type", string(event.Type))
	return b.pubSub.Publish(subject, msg)
}

// Subscribe registers handler under a unique handlerName to receive every
// message published on subject. A handler that panics is recovered by the
// router's Recoverer middleware and reported as an error, isolating it
// from every other handler on the same subject. Subscribe may be called
// before or after Run; a handler added to a running bus is started at once.
func (b *Bus) Subscribe(handlerName, subject string, handler Handler) {
	b.router.AddNoPublisherHandler(handlerName, subject, b.pubSub, func(msg *message.Message) error {
		var event domain.RiskEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			b.logger.Error("failed to decode risk event",
				zap.String("handler", handlerName),
				zap.String("subject", subject),
				zap.Error(err),
			)
			return nil
		}
		if err := handler(msg.Context(), &event); err != nil {
			b.logger.Error("event handler returned error",
				zap.String("handler", handlerName),
				zap.String("subject", subject),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
		return nil
	})

	select {
	case <-b.router.Running():
		if err := b.router.RunHandlers(context.Background()); err != nil {
			b.logger.Error("failed to start event handler", zap.String("handler", handlerName), zap.Error(err))
		}
	default:
	}
}

// zapWriter adapts *zap.Logger to io.Writer so watermill.NewStdLoggerWithOut
// can route its own diagnostic output through the application logger.
type zapWriter struct {
	logger *zap.Logger
}

func (w zapWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(p))
	return len(p), nil
}
