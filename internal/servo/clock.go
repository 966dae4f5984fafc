package servo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock 仿真时钟：独立 goroutine 按固定周期推进 Bank，与协议流量无关。
type Clock struct {
	bank     *Bank
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// 可选节拍回调（指标上报）
	onTick func()
}

// NewClock 创建仿真时钟。interval <= 0 时使用 100ms 默认周期。
func NewClock(bank *Bank, interval time.Duration, log *zap.Logger) *Clock {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Clock{bank: bank, interval: interval, log: log}
}

// SetOnTick 设置节拍回调，在每次 Bank 推进完成后调用
func (c *Clock) SetOnTick(fn func()) { c.onTick = fn }

// Start 启动时钟 goroutine
func (c *Clock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("clock already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.bank.Tick()
				if c.onTick != nil {
					c.onTick()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	c.log.Info("simulation clock started", zap.Duration("interval", c.interval))
	return nil
}

// Stop 停止时钟并等待 goroutine 退出（幂等）
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	<-c.done
	c.running = false
	c.log.Info("simulation clock stopped")
}
