package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"escrowchain/native/payment"
)

// BlockClock closes a block on every tick of its interval, running the
// scheduled-task executor and advancing the height.
type BlockClock struct {
	runtime  *Runtime
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
	start    sync.Once
	stopOnce sync.Once
	running  atomic.Bool
	// onBlock, when set, observes each closed block.
	onBlock func(payment.TickSummary, error)
}

func NewBlockClock(rt *Runtime, interval time.Duration, logger *slog.Logger) *BlockClock {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockClock{
		runtime:  rt,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Running reports whether the loop is active.
func (c *BlockClock) Running() bool {
	return c.running.Load()
}

// Start launches the loop in its own goroutine. It runs until ctx is
// cancelled or Stop is called. Later calls are no-ops.
func (c *BlockClock) Start(ctx context.Context) {
	c.start.Do(func() {
		c.running.Store(true)
		go c.loop(ctx)
	})
}

func (c *BlockClock) loop(ctx context.Context) {
	defer close(c.done)
	defer c.running.Store(false)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.safeEndBlock(ctx)
		}
	}
}

// Stop ends the loop and waits for the block in progress, if any, so the
// caller can close storage afterwards.
func (c *BlockClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	started := true
	c.start.Do(func() { started = false })
	if started {
		<-c.done
	}
}

func (c *BlockClock) safeEndBlock(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in block clock", "panic", fmt.Sprint(r))
		}
	}()
	summary, err := c.runtime.EndBlock(ctx)
	if c.onBlock != nil {
		c.onBlock(summary, err)
	}
}
