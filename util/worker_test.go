package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorker(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"runs sent tasks": func(t *testing.T) {
			wg := &sync.WaitGroup{}
			var sum atomic.Int64
			w := NewWorker("sum", wg, func(n int) error {
				sum.Add(int64(n))
				return nil
			}, 4)
			w.Start()
			for i := 1; i <= 4; i++ {
				w.Sender() <- i
			}
			require.Eventually(t, func() bool { return sum.Load() == 10 }, time.Second, 5*time.Millisecond)
			w.Stop()
			w.Stop()
			wg.Wait()
		},
		"drain returns buffered tasks": func(t *testing.T) {
			w := NewWorker("idle", &sync.WaitGroup{}, func(n int) error { return nil }, 3)
			require.Equal(t, 3, w.Free())
			w.Sender() <- 1
			w.Sender() <- 2
			require.Equal(t, 1, w.Free())
			require.Equal(t, []int{1, 2}, w.Drain())
			require.Empty(t, w.Drain())
			require.Equal(t, 3, w.Free())
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestTickWorker(t *testing.T) {
	wg := &sync.WaitGroup{}
	var ticks atomic.Int64
	tw := NewTickWorker("ticker", 5*time.Millisecond, func() { ticks.Add(1) }, wg)
	tw.Start()
	tw.Start()
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.True(t, tw.IsRunning())

	tw.Stop()
	tw.Stop()
	tw.Wait()
	require.False(t, tw.IsRunning())
	wg.Wait()
}

func TestTickWorkerWaitsForRunningTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	tw := NewTickWorker("slow", 5*time.Millisecond, func() {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
	}, &sync.WaitGroup{})
	tw.Wait()
	tw.Start()
	<-entered

	tw.Stop()
	waited := make(chan struct{})
	go func() {
		tw.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("wait returned while a tick was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-waited
	require.True(t, finished.Load())
}
