package router

import (
	"context"
	"sync"

	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxMessages is the default capacity for a route with a capacity defined
	DefaultMaxMessages = 1000
)

var (
	// ErrRouteClosed indicates that a route was closed while reading/writing.
	ErrRouteClosed = errors.New("route is closed")

	// ErrRouteCapacityReached indicates that route's capacity has been reached
	ErrRouteCapacityReached = errors.New("route capacity has been reached")
)

// Route is a bounded queue of received messages waiting to be processed
type Route struct {
	name    string
	channel chan *appmessage.Envelope
	// closed and closeLock are used to protect us from writing to a closed channel
	// reads use the channel's built-in mechanism to check if the channel is closed
	closed    bool
	closeLock sync.Mutex
	capacity  int
}

// NewRoute create a new Route
func NewRoute(name string) *Route {
	return NewRouteWithCapacity(name, DefaultMaxMessages)
}

// NewRouteWithCapacity creates a new Route holding up to capacity messages
func NewRouteWithCapacity(name string, capacity int) *Route {
	return &Route{
		name:     name,
		channel:  make(chan *appmessage.Envelope, capacity),
		closed:   false,
		capacity: capacity,
	}
}

// Enqueue enqueues a message to the Route
func (r *Route) Enqueue(envelope *appmessage.Envelope) error {
	r.closeLock.Lock()
	defer r.closeLock.Unlock()

	if r.closed {
		return errors.WithStack(ErrRouteClosed)
	}
	if len(r.channel) == r.capacity {
		return errors.Wrapf(ErrRouteCapacityReached, "route '%s' reached capacity of %d", r.name, r.capacity)
	}
	r.channel <- envelope
	return nil
}

// Dequeue dequeues a message from the Route, waiting until one is
// available, the route is closed or ctx is done.
func (r *Route) Dequeue(ctx context.Context) (*appmessage.Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case envelope, isOpen := <-r.channel:
		if !isOpen {
			return nil, errors.Wrapf(ErrRouteClosed, "route '%s' is closed", r.name)
		}
		return envelope, nil
	}
}

// Len returns the number of queued messages
func (r *Route) Len() int {
	return len(r.channel)
}

// Close closes this route
func (r *Route) Close() {
	r.closeLock.Lock()
	defer r.closeLock.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.channel)
}
