package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// Dispatcher 进程内异步投递：有界队列 + 固定 worker，队列满直接丢弃
type Dispatcher struct {
	deliverer *Deliverer
	ch        chan Notification
	timeout   time.Duration

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(deliverer *Deliverer, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &Dispatcher{deliverer: deliverer, ch: make(chan Notification, queueSize), timeout: 5 * time.Second}
}

var _ Sink = (*Dispatcher)(nil)

// Start 启动 worker，返回的 stop 会先排空队列（受 ctx 限制）再返回
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case n := <-d.ch:
					d.handle(n)
				case <-stopCh:
					for {
						select {
						case n := <-d.ch:
							d.handle(n)
						default:
							return
						}
					}
				}
			}
		}()
	}

	return func(ctx context.Context) error {
		close(stopCh)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Notify 入队，不阻塞调用方
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	prepare(&n)
	select {
	case d.ch <- n:
	default:
		d.dropped.Add(1)
		logger.Warn("notification queue full, drop", zap.String("user", n.UserID), zap.String("type", n.Type))
	}
}

func (d *Dispatcher) handle(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.deliverer.Deliver(ctx, n); err != nil {
		d.failed.Add(1)
		logger.Error("notification delivery failed", zap.String("user", n.UserID), zap.String("id", n.ID), zap.Error(err))
		return
	}
	d.delivered.Add(1)
}

// QueueLen 当前队列长度（采样值）
func (d *Dispatcher) QueueLen() int { return len(d.ch) }

// Stats 已投递、失败、丢弃数
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}
