package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultStartupDelay is how long the engine waits before the first cycle,
// giving HTTP listeners and clients time to come up before outbound polling
// starts.
const DefaultStartupDelay = 10 * time.Second

type loop struct {
	cycle    *Cycle
	interval time.Duration
}

// Engine schedules poll cycles. Each provider gets its own goroutine and
// ticker so a slow provider never delays the others.
type Engine struct {
	startupDelay time.Duration
	loops        []loop

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEngine creates an engine with the given startup delay.
func NewEngine(startupDelay time.Duration) *Engine {
	if startupDelay < 0 {
		startupDelay = DefaultStartupDelay
	}
	return &Engine{
		startupDelay: startupDelay,
		stopCh:       make(chan struct{}),
	}
}

// Add registers a cycle to run at the given interval. Must be called before
// Start.
func (e *Engine) Add(c *Cycle, interval time.Duration) {
	e.loops = append(e.loops, loop{cycle: c, interval: interval})
}

// Start launches one polling goroutine per registered cycle.
func (e *Engine) Start(ctx context.Context) {
	for _, l := range e.loops {
		e.wg.Add(1)
		go e.run(ctx, l)
	}
	slog.Info("poll engine started",
		"providers", len(e.loops),
		"startup_delay", e.startupDelay,
	)
}

// Stop halts all polling loops and waits for in-flight cycles to finish.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, l loop) {
	defer e.wg.Done()

	select {
	case <-time.After(e.startupDelay):
	case <-e.stopCh:
		return
	case <-ctx.Done():
		return
	}

	e.runCycle(ctx, l)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runCycle(ctx, l)
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle executes one cycle with a deadline of the loop interval, so a
// wedged cycle cannot overlap the next tick, and contains panics so one bad
// provider response never takes the engine down.
func (e *Engine) runCycle(ctx context.Context, l loop) {
	providerName := string(l.cycle.Provider())

	defer func() {
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(providerName).Inc()
			slog.Error("poll cycle panicked",
				"provider", providerName,
				"panic", r,
			)
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	start := time.Now()
	l.cycle.Run(cycleCtx)

	cyclesTotal.WithLabelValues(providerName).Inc()
	cycleDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
}
