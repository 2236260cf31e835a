package router

import "sync"

// Router dispatches classified plaintext to registered handlers. Handlers
// run synchronously on the goroutine calling Route. It is safe for
// concurrent use.
type Router struct {
	mu     sync.RWMutex
	user   []func(string)
	system map[Kind][]func(SystemMessage)
}

// New creates a router with no handlers.
func New() *Router {
	return &Router{system: make(map[Kind][]func(SystemMessage))}
}

// OnUser registers a handler for user messages.
func (r *Router) OnUser(fn func(text string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = append(r.user, fn)
}

// OnSystem registers a handler for one system sub-type. Handlers for
// KindUnknown are never called.
func (r *Router) OnSystem(kind Kind, fn func(SystemMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system[kind] = append(r.system[kind], fn)
}

// Route classifies plaintext and dispatches it. It returns the kind it
// classified, KindUnknown for ignored sub-types.
func (r *Router) Route(plaintext string) Kind {
	msg := Parse(plaintext)
	r.Dispatch(msg)
	return msg.Kind
}

// Dispatch delivers an already parsed message.
func (r *Router) Dispatch(msg Message) {
	switch msg.Kind {
	case KindUser:
		r.mu.RLock()
		handlers := r.user
		r.mu.RUnlock()
		for _, fn := range handlers {
			fn(msg.Text)
		}
	case KindUnknown:
	default:
		r.mu.RLock()
		handlers := r.system[msg.Kind]
		r.mu.RUnlock()
		for _, fn := range handlers {
			fn(*msg.System)
		}
	}
}
