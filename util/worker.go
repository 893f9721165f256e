package util

import (
	"sync"

	"github.com/funnelkit/journey/logger"
	"go.uber.org/zap"
)

type Task any

// Worker is a bounded pool of goroutines draining a shared task channel.
// Concurrency bounds how many tasks run at once; capacity bounds how many
// can be queued before senders block.
type Worker struct {
	name        string
	concurrency int
	stop        chan struct{}
	wg          *sync.WaitGroup
	handler     func(Task) error
	taskChan    chan Task
}

func NewWorker(name string, wg *sync.WaitGroup, handler func(Task) error, capacity int, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		taskChan:    make(chan Task, capacity),
		name:        name,
		wg:          wg,
		stop:        make(chan struct{}),
		handler:     handler,
		concurrency: concurrency,
	}
}

func (w *Worker) Start() {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case task := <-w.taskChan:
					err := w.handler(task)
					if err != nil {
						logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task))
					}
				case <-w.stop:
					logger.Info("stopping worker", zap.String("worker", w.name))
					return
				}
			}
		}()
	}
}

func (w *Worker) Sender() chan<- Task {
	return w.taskChan
}

func (w *Worker) Stop() {
	close(w.stop)
}
