package facade

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// HandleState is the state of a Service's client handle.
type HandleState int

const (
	// HandleIdle means nothing asked for the client yet.
	HandleIdle HandleState = iota

	// HandlePending means the client is being built.
	HandlePending

	// HandleReady means the client was built.
	HandleReady

	// HandleFailed means building the client failed.  It stays failed.
	HandleFailed

	// HandleClosed means the built client was closed.  It stays closed.
	HandleClosed
)

// String returns the state's name.
func (s HandleState) String() string {
	switch s {
	case HandleIdle:
		return "idle"
	case HandlePending:
		return "pending"
	case HandleReady:
		return "ready"
	case HandleFailed:
		return "failed"
	case HandleClosed:
		return "closed"
	default:
		return fmt.Sprintf("HandleState(%d)", int(s))
	}
}

// handle builds a Client at most once and shares the outcome.
type handle struct {
	mu     sync.Mutex
	state  HandleState
	done   chan struct{}
	client Client
	err    error
}

// get returns the client, starting build on the first call.  The build is
// detached from ctx: a caller that gives up doesn't stop it for the others.
func (h *handle) get(ctx context.Context, build func(context.Context) (Client, error)) (Client, error) {
	h.mu.Lock()
	if h.state == HandleIdle {
		h.state = HandlePending
		h.done = make(chan struct{})
		go h.run(context.WithoutCancel(ctx), build)
	}
	done := h.done
	h.mu.Unlock()

	select {
	case <-done:
	default:
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HandleClosed {
		return nil, ErrClosed
	}
	return h.client, h.err
}

func (h *handle) run(ctx context.Context, build func(context.Context) (Client, error)) {
	var (
		c   Client
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("facade: client factory panicked: %v", r)
		}
		if err == nil && isNilClient(c) {
			err = ErrNilClient
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			h.state, h.err = HandleFailed, err
		} else {
			h.state, h.client = HandleReady, c
		}
		close(h.done)
	}()
	c, err = build(ctx)
}

// close moves a ready handle to HandleClosed and returns its client.  It
// returns nil in any other state.
func (h *handle) close() Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HandleReady {
		return nil
	}
	c := h.client
	h.state, h.client = HandleClosed, nil
	return c
}

// isNilClient also catches a nil pointer wrapped in the Client interface.
func isNilClient(c Client) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// current returns the state and, when ready, the client.
func (h *handle) current() (HandleState, Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.client
}
