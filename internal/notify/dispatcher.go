package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs posted work in order on a single goroutine, separate from
// the goroutines doing persistence and network I/O
type Dispatcher struct {
	logger *zap.Logger
	queue  chan func()

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDispatcher(buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		logger: logger,
		queue:  make(chan func(), buffer),
	}
}

// Start launches the interaction goroutine
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})

	d.wg.Add(1)
	go d.run(d.stopCh)
}

// Stop runs what is already queued and then exits
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(stopCh chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case fn := <-d.queue:
			d.exec(fn)
		case <-stopCh:
			for {
				select {
				case fn := <-d.queue:
					d.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic on interaction dispatcher", zap.Any("recover", r))
		}
	}()
	fn()
}

// Post queues fn behind earlier posts. It blocks while the queue is full.
func (d *Dispatcher) Post(ctx context.Context, fn func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return fmt.Errorf("dispatcher not running")
	}

	select {
	case d.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until everything posted before the call has run
func (d *Dispatcher) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := d.Post(ctx, func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
