// Package scard talks to the platform PC/SC stack: enumerating smart-card
// readers, connecting to cards, and monitoring reader and card movements in
// the background.
//
// Most programs either hold a Context for one-shot work (list readers,
// connect, transmit) or run a Monitor and react to its event stream. The
// two are independent; a Monitor owns a private context so stopping it
// never disturbs other connections.
package scard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Context owns a connection to the PC/SC resource manager.
type Context struct {
	mu  sync.Mutex
	drv driver
	h   uintptr
}

// EstablishContext opens a system-scope connection to the resource manager.
func EstablishContext() (*Context, error) {
	h, err := sysDrv.EstablishContext(ScopeSystem)
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	return &Context{drv: sysDrv, h: h}, nil
}

func (c *Context) handle() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}

// Close releases the context. Further calls are no-ops.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.h == 0 {
		return nil
	}
	err := c.drv.ReleaseContext(c.h)
	c.h = 0
	return err
}

// Valid reports whether the daemon still accepts this context.
func (c *Context) Valid() bool {
	h := c.handle()
	return h != 0 && c.drv.IsValidContext(h)
}

// Cancel unblocks a WaitForChange running on another goroutine. Cancelling
// a context that has already been released is not an error.
func (c *Context) Cancel() error {
	h := c.handle()
	if h == 0 {
		return nil
	}
	if err := c.drv.Cancel(h); err != nil && !errors.Is(err, ErrInvalidHandle) {
		return err
	}
	return nil
}

// ListReaders enumerates the attached readers. Each Reader carries the
// state and ATR captured at enumeration time; no readers at all is an empty
// result, not an error.
func (c *Context) ListReaders() ([]*Reader, error) {
	names, err := c.drv.ListReaders(c.handle())
	if err != nil {
		if errors.Is(err, ErrNoReadersAvailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("list readers: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	states := make([]ReaderState, len(names))
	for i, n := range names {
		states[i] = ReaderState{Reader: n, Current: StateUnaware}
	}
	if err := c.drv.GetStatusChange(c.handle(), 0, states); err != nil {
		// the snapshot is best effort, the readers are usable without it
		log.Debugf("scard: initial status query failed: %v", err)
	}
	readers := make([]*Reader, len(states))
	for i := range states {
		readers[i] = &Reader{
			ctx:   c,
			name:  states[i].Reader,
			state: states[i].Event &^ StateChanged,
			atr:   states[i].ATR,
		}
	}
	return readers, nil
}

// WaitForChange blocks until one of the given readers changes state, the
// timeout expires, or Cancel is called. A nil set watches every currently
// attached reader plus the plug-and-play sentinel; a negative timeout waits
// forever. Timeouts and cancellation surface as ErrTimeout and ErrCancelled
// for the caller to classify.
func (c *Context) WaitForChange(states []ReaderState, timeout time.Duration) ([]ReaderState, error) {
	if states == nil {
		names, err := c.drv.ListReaders(c.handle())
		if err != nil && !errors.Is(err, ErrNoReadersAvailable) {
			return nil, fmt.Errorf("list readers: %w", err)
		}
		states = make([]ReaderState, 0, len(names)+1)
		for _, n := range names {
			states = append(states, ReaderState{Reader: n, Current: StateUnaware})
		}
		states = append(states, ReaderState{Reader: PnPNotification, Current: StateUnaware})
	}
	out := make([]ReaderState, len(states))
	copy(out, states)
	if err := c.drv.GetStatusChange(c.handle(), timeout, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reader is a smart-card reader known to a context, with the state captured
// when it was listed.
type Reader struct {
	ctx   *Context
	name  string
	state StateFlag
	atr   []byte
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) State() StateFlag {
	return r.state
}

// ATR returns the answer-to-reset of the card that was present at
// enumeration time, or nil.
func (r *Reader) ATR() []byte {
	return cloneBytes(r.atr)
}

// Connect opens a connection to the card in this reader.
func (r *Reader) Connect(mode ShareMode, protocols Protocol) (*Card, error) {
	h, active, err := r.ctx.drv.Connect(r.ctx.handle(), r.name, mode, protocols)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", r.name, err)
	}
	return &Card{
		drv:       r.ctx.drv,
		h:         h,
		reader:    r.name,
		protocol:  active,
		connected: true,
	}, nil
}
