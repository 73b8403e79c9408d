package util

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ticket721/actionset/logger"
	"go.uber.org/zap"
)

type TickWorker struct {
	stop         chan struct{}
	done         chan struct{}
	tickInterval time.Duration
	wg           *sync.WaitGroup
	name         string
	fn           func()
	started      atomic.Bool
	running      atomic.Bool
	stopOnce     sync.Once
}

func NewTickWorker(name string, interval time.Duration, fn func(), wg *sync.WaitGroup) *TickWorker {
	return &TickWorker{
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		tickInterval: interval,
		wg:           wg,
		fn:           fn,
		name:         name,
	}
}

// Start runs fn on every tick until Stop. A stopped worker is not restarted.
func (tw *TickWorker) Start() {
	if !tw.started.CompareAndSwap(false, true) {
		return
	}
	tw.running.Store(true)
	ticker := time.NewTicker(tw.tickInterval)
	tw.wg.Add(1)
	go func() {
		defer tw.wg.Done()
		defer close(tw.done)
		for {
			select {
			case <-ticker.C:
				tw.fn()
			case <-tw.stop:
				logger.Info("stopping tick worker", zap.String("worker", tw.name))
				ticker.Stop()
				tw.running.Store(false)
				return
			}
		}
	}()
	logger.Info("tick worker started", zap.String("worker", tw.name), zap.Duration("interval", tw.tickInterval))
}

// Stop is safe to call more than once, including from fn. It does not wait
// for a running fn to return.
func (tw *TickWorker) Stop() {
	tw.stopOnce.Do(func() {
		close(tw.stop)
	})
}

// Wait blocks until the tick goroutine has exited. It must not be called
// from fn.
func (tw *TickWorker) Wait() {
	if !tw.started.Load() {
		return
	}
	<-tw.done
}

func (tw *TickWorker) IsRunning() bool {
	return tw.running.Load()
}
