package util

import (
	"sync"

	"github.com/ticket721/actionset/logger"
	"go.uber.org/zap"
)

// Worker runs handler for every task sent to it, one at a time.
type Worker[T any] struct {
	name     string
	capacity int
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(T) error
	taskChan chan T
	stopOnce sync.Once
}

func NewWorker[T any](name string, wg *sync.WaitGroup, handler func(T) error, capacity int) *Worker[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Worker[T]{
		taskChan: make(chan T, capacity),
		name:     name,
		capacity: capacity,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}

func (w *Worker[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			select {
			case task := <-w.taskChan:
				err := w.handler(task)
				if err != nil {
					logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Error(err))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

func (w *Worker[T]) Sender() chan<- T {
	return w.taskChan
}

// Free is the number of tasks that can be sent without blocking.
func (w *Worker[T]) Free() int {
	return w.capacity - len(w.taskChan)
}

// Drain removes and returns the tasks still buffered. Meant to be called
// after Stop.
func (w *Worker[T]) Drain() []T {
	var tasks []T
	for {
		select {
		case task := <-w.taskChan:
			tasks = append(tasks, task)
		default:
			return tasks
		}
	}
}

// Stop is safe to call more than once.
func (w *Worker[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}
