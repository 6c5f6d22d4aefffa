package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/serrors"
)

// AllTopics subscribes a handler to every topic.
const AllTopics = "*"

var ErrNoSubscribers = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")

// Event is a committed domain event delivered to in-process subscribers.
type Event struct {
	EventID  uuid.UUID
	TenantID uuid.UUID
	Topic    string
	Sequence int64
	Attempts int
	Payload  json.RawMessage
}

type Handler func(ctx context.Context, ev Event) error

type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(topic string, handler Handler)
	Clear()
	SubscribersCount() int
}

type subscriber struct {
	topic   string
	handler Handler
}

type publisherImpl struct {
	log *logrus.Logger

	mu          sync.RWMutex
	subscribers []subscriber
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

// Publish invokes every matching handler, recovering panics, and joins their errors.
func (p *publisherImpl) Publish(ctx context.Context, ev Event) error {
	p.mu.RLock()
	subs := make([]subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.RUnlock()

	handled := false
	var errs []error
	for _, sub := range subs {
		if sub.topic != AllTopics && sub.topic != ev.Topic {
			continue
		}
		handled = true
		func() {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("eventbus: handler for %s panicked: %v", ev.Topic, r)
					if p.log != nil {
						p.log.WithField("event_id", ev.EventID.String()).Error(err.Error())
					}
					errs = append(errs, err)
				}
			}()
			if err := sub.handler(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}()
	}

	if !handled {
		if p.log != nil {
			p.log.WithField("topic", ev.Topic).Warn("eventbus.Publish: no matching subscribers")
		}
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

func (p *publisherImpl) Subscribe(topic string, handler Handler) {
	if handler == nil {
		panic("handler must not be nil")
	}
	if topic == "" {
		topic = AllTopics
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, subscriber{topic: topic, handler: handler})
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
