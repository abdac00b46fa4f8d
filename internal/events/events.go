// Package events publishes maintenance activity to subscribers outside the
// request path: MQTT for plant systems and a websocket feed for dashboards.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types.
const (
	WorkOrderCreated = "work_order.created"
	WorkOrderUpdated = "work_order.updated"
	WorkOrderDeleted = "work_order.deleted"
	PartConsumed     = "part.consumed"
	PartLowStock     = "part.low_stock"
	PartRestocked    = "part.restocked"
	PMRunCompleted   = "pm.run_completed"
)

// Event is the envelope sent to every subscriber.
type Event struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// New builds an event of type eventType.
func New(eventType string, at time.Time, data interface{}) Event {
	return Event{Type: eventType, At: at, Data: data}
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and never undo committed work because of them.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Publish discards e.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish sends e to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes e and logs instead of returning a failure.
func Emit(ctx context.Context, p Publisher, log logrus.FieldLogger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("event", e.Type).Warn("failed to publish event")
	}
}
