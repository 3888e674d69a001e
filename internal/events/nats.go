package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the subject namespace for task events.
const DefaultSubjectPrefix = "tasks"

// envelope is the wire form published to NATS.
type envelope struct {
	Type      string    `json:"type"`
	Task      string    `json:"task"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// NATSEmitter publishes events as JSON to NATS.
//
// Events are published to subjects:
//   - {prefix}.created
//   - {prefix}.distribution_submitted
//   - {prefix}.reward_claimed
//
// Publish failures are logged and dropped.
type NATSEmitter struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewNATSEmitter creates an emitter publishing on nc under prefix.
func NewNATSEmitter(nc *nats.Conn, prefix string, logger *zap.Logger) (*NATSEmitter, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSEmitter{
		nc:     nc,
		prefix: prefix,
		logger: logger.Named("events"),
		now:    time.Now,
	}, nil
}

// Subject returns the subject an event type is published on.
func (e *NATSEmitter) Subject(eventType string) string {
	return e.prefix + "." + eventType
}

// Emit publishes event. It never blocks on the broker beyond the client buffer.
func (e *NATSEmitter) Emit(ctx context.Context, event Event) {
	subject := e.Subject(event.Type())
	data, err := json.Marshal(envelope{
		Type:      event.Type(),
		Task:      event.Task(),
		Timestamp: e.now().UTC(),
		Payload:   event,
	})
	if err != nil {
		e.logger.Warn("marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	if err := e.nc.Publish(subject, data); err != nil {
		e.logger.Warn("publish event",
			zap.String("subject", subject),
			zap.String("task", event.Task()),
			zap.Error(err))
		return
	}

	e.logger.Debug("event published", zap.String("subject", subject), zap.String("task", event.Task()))
}
