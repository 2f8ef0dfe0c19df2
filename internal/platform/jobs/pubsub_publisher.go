package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/merchline/api/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub
// topic for downstream consumers (notifications, analytics).
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues the event on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// expiryMessage is the wire shape for deferred expiry jobs. Cancellations
// reuse the same shape with the action attribute flipped.
type expiryMessage struct {
	OrderID string    `json:"orderId"`
	FireAt  time.Time `json:"fireAt,omitempty"`
}

const (
	expiryActionSchedule = "schedule"
	expiryActionCancel   = "cancel"
)

// PubSubExpiryScheduler hands unpaid-order expiry jobs to a Pub/Sub topic.
// The worker consuming the topic calls back into the expiry endpoint at
// fire time; the expiry operation itself re-checks order state, so a late
// or duplicate delivery is harmless.
type PubSubExpiryScheduler struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubExpiryScheduler constructs a Pub/Sub backed expiry scheduler.
func NewPubSubExpiryScheduler(topic *pubsub.Topic) (*PubSubExpiryScheduler, error) {
	if topic == nil {
		return nil, errors.New("pubsub expiry scheduler: topic is required")
	}
	return &PubSubExpiryScheduler{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Schedule enqueues an expiry job that fires at the given instant.
func (s *PubSubExpiryScheduler) Schedule(ctx context.Context, orderID string, fireAt time.Time) error {
	return s.publish(ctx, expiryActionSchedule, expiryMessage{OrderID: orderID, FireAt: fireAt.UTC()})
}

// Cancel tells the worker to drop any pending job for the order.
func (s *PubSubExpiryScheduler) Cancel(ctx context.Context, orderID string) error {
	return s.publish(ctx, expiryActionCancel, expiryMessage{OrderID: orderID})
}

func (s *PubSubExpiryScheduler) publish(ctx context.Context, action string, msg expiryMessage) error {
	if s == nil || s.topic == nil {
		return errors.New("pubsub expiry scheduler: not initialised")
	}
	if strings.TrimSpace(msg.OrderID) == "" {
		return errors.New("pubsub expiry scheduler: order id is required")
	}

	data, err := s.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal expiry message: %w", err)
	}

	attrs := map[string]string{"action": action}
	setAttr(attrs, "orderId", msg.OrderID)

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish expiry %s: %w", action, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
