package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler owns the root context of a run. The first SIGINT/SIGTERM cancels
// it and runs the cleanup functions; a second signal calls Exit.
type Handler struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cleanupFns []func()
	mu         sync.Mutex
	once       sync.Once

	// OnSignal is called with the received signal before shutdown starts.
	OnSignal func(os.Signal)
	// Exit is called on the second signal. Defaults to os.Exit(130).
	Exit func()
}

// New creates a new shutdown handler
func New() *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:    ctx,
		cancel: cancel,
		Exit:   func() { os.Exit(130) },
	}
}

// Context returns the shutdown context
func (h *Handler) Context() context.Context {
	return h.ctx
}

// AddCleanup registers a cleanup function. Cleanups run once, newest first.
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFns = append(h.cleanupFns, fn)
}

// Listen starts listening for shutdown signals
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		if h.OnSignal != nil {
			h.OnSignal(sig)
		}
		go h.Shutdown()

		<-sigChan
		h.Exit()
	}()
}

// Shutdown cancels the context and runs the cleanup functions. It is safe
// to call more than once.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.cancel()

		h.mu.Lock()
		fns := h.cleanupFns
		h.cleanupFns = nil
		h.mu.Unlock()

		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	})
}
