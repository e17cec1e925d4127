package pubsub

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broker closed")

// Local delivers messages synchronously to in-process handlers. It is the
// single-node broker and the one tests use.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(_ context.Context, msg Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}
	for _, h := range l.handlers {
		h(msg)
	}
	return nil
}

func (l *Local) Subscribe(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.handlers = append(l.handlers, h)
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.handlers = nil
	return nil
}
