package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ShutdownFunc performs cleanup during shutdown. It receives a context that
// is cancelled once the handler's timeout elapses.
type ShutdownFunc func(ctx context.Context) error

// ShutdownHandler is one registered service shutdown: the HTTP server, the
// approvals server, or any other listener the process must drain on exit.
type ShutdownHandler struct {
	Name    string
	Func    ShutdownFunc
	Timeout time.Duration // 0 = use the coordinator's default
}

// ShutdownResult is the outcome of running one handler.
type ShutdownResult struct {
	Name     string
	Duration time.Duration
	Error    error
}

// ShutdownCoordinator runs every registered service's shutdown concurrently
// and bounds each to a timeout, so one stuck listener can't hold the process
// open past cmd/arc's SIGTERM grace period.
type ShutdownCoordinator struct {
	mu             sync.Mutex
	handlers       []ShutdownHandler
	defaultTimeout time.Duration
	logger         *slog.Logger
	shutdownOnce   sync.Once
	results        []ShutdownResult
}

// NewShutdownCoordinator creates a coordinator with the given default
// per-handler timeout.
func NewShutdownCoordinator(defaultTimeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ShutdownCoordinator{defaultTimeout: defaultTimeout, logger: logger}
}

// RegisterService registers a listening service to be shut down, e.g. the
// agent HTTP server or the approvals callback server.
func (c *ShutdownCoordinator) RegisterService(name string, fn ShutdownFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, ShutdownHandler{Name: name, Func: fn})
}

// Shutdown runs every registered handler concurrently, bounded by ctx and
// each handler's own timeout. Only the first call does any work; later
// calls return the first call's results.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) []ShutdownResult {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		handlers := c.handlers
		c.mu.Unlock()

		c.logger.Info("starting graceful shutdown", "services", len(handlers))
		start := time.Now()

		results := make([]ShutdownResult, len(handlers))
		var wg sync.WaitGroup
		for i, handler := range handlers {
			wg.Add(1)
			go func(idx int, h ShutdownHandler) {
				defer wg.Done()
				results[idx] = c.runHandler(ctx, h)
			}(i, handler)
		}
		wg.Wait()

		c.logger.Info("graceful shutdown complete", "duration", time.Since(start))
		c.mu.Lock()
		c.results = results
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// runHandler executes a single handler under its timeout.
func (c *ShutdownCoordinator) runHandler(ctx context.Context, handler ShutdownHandler) ShutdownResult {
	result := ShutdownResult{Name: handler.Name}
	start := time.Now()

	timeout := handler.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.Func(handlerCtx)
	}()

	select {
	case err := <-done:
		result.Duration = time.Since(start)
		result.Error = err
		if err != nil {
			c.logger.Warn("shutdown handler error", "handler", handler.Name, "error", err)
		} else {
			c.logger.Debug("shutdown handler complete", "handler", handler.Name, "duration", result.Duration)
		}
	case <-handlerCtx.Done():
		result.Duration = time.Since(start)
		result.Error = handlerCtx.Err()
		c.logger.Warn("shutdown handler timed out", "handler", handler.Name, "timeout", timeout)
	}

	return result
}
