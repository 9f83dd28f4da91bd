// Package lifecycle scopes the acquisition and release of external connections
// to a single batch run.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Hook is a named startup or shutdown function.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Coordinator collects startup and shutdown hooks for the systems a run depends on.
// Startup hooks run concurrently and any failure is fatal. Shutdown hooks run in
// reverse registration order and always run, even after a failed startup.
type Coordinator struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	startup  []Hook
	shutdown []Hook
	ready    bool
	closed   bool
}

// New creates a Coordinator whose context derives from parent.
func New(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a hook run by Startup.
func (c *Coordinator) OnStartup(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startup = append(c.startup, Hook{Name: name, Fn: fn})
}

// OnShutdown registers a hook run by Shutdown.
func (c *Coordinator) OnShutdown(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = append(c.shutdown, Hook{Name: name, Fn: fn})
}

// Ready reports whether Startup completed without error.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Startup runs every startup hook concurrently within timeout and returns the
// first failure.
func (c *Coordinator) Startup(timeout time.Duration) error {
	c.mu.Lock()
	hooks := append([]Hook(nil), c.startup...)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hooks {
		g.Go(func() error {
			if err := h.Fn(gctx); err != nil {
				return fmt.Errorf("%s: %w", h.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Shutdown cancels the coordinator context and runs shutdown hooks in reverse
// order. Every hook runs; their errors are joined. Calling Shutdown twice is a no-op.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.ready = false
	hooks := append([]Hook(nil), c.shutdown...)
	c.mu.Unlock()

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}
