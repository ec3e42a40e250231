package changefeed

import (
	"context"
	"sync"
)

// Local is an in-process feed. Handlers run synchronously on the publishing goroutine.
type Local struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Topic]map[int]Handler
	closed   bool
}

// NewLocal creates an empty in-process feed
func NewLocal() *Local {
	return &Local{
		handlers: make(map[Topic]map[int]Handler),
	}
}

func (l *Local) Publish(ctx context.Context, event Event) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	// Copy so handlers may unsubscribe while being called
	fns := make([]Handler, 0, len(l.handlers[event.Topic]))
	for _, fn := range l.handlers[event.Topic] {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, topic Topic, fn Handler) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	id := l.nextID
	l.nextID++
	if l.handlers[topic] == nil {
		l.handlers[topic] = make(map[int]Handler)
	}
	l.handlers[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.handlers[topic], id)
		})
	}, nil
}

// Close drops all handlers; later publishes and subscribes fail with ErrClosed
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = make(map[Topic]map[int]Handler)
	return nil
}
