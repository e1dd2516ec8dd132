package events

import (
	"context"
	"sync"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/rs/zerolog/log"
)

// Observer receives every status change; it's called synchronously, so slow observers should queue internally
type Observer interface {
	OnStatusChange(ctx context.Context, event api.StatusEvent)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, event api.StatusEvent)

// OnStatusChange calls f
func (f ObserverFunc) OnStatusChange(ctx context.Context, event api.StatusEvent) {
	f(ctx, event)
}

// Client fans out status events to the registered observers in registration order
//go:generate mockgen -package=events -destination ./mock.go -source=client.go
type Client interface {
	Subscribe(observer Observer) (unsubscribe func())
	Publish(ctx context.Context, event api.StatusEvent)
}

// NewClient returns a new events.Client with the given observers subscribed
func NewClient(observers ...Observer) Client {
	c := &client{
		observers: map[int]Observer{},
	}
	for _, o := range observers {
		c.Subscribe(o)
	}
	return c
}

type client struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	observers map[int]Observer
}

func (c *client) Subscribe(observer Observer) (unsubscribe func()) {

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.order = append(c.order, id)
	c.observers[id] = observer

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.observers, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Publish holds the lock while notifying, so observers see events in the order they were published
func (c *client) Publish(ctx context.Context, event api.StatusEvent) {

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		c.notify(ctx, c.observers[id], event)
	}
}

func (c *client) notify(ctx context.Context, observer Observer, event api.StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msgf("[%v] Observer panicked handling %v -> %v", event.PipelineID, event.OldStatus, event.NewStatus)
		}
	}()
	observer.OnStatusChange(ctx, event)
}
