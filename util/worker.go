package util

import (
	"fmt"
	"sync"

	"github.com/mohitkumar/stepflow/logger"
	"go.uber.org/zap"
)

type Task any

// Worker runs handler for every submitted task on a fixed number of
// goroutines fed from a bounded channel.
type Worker struct {
	name       string
	capacity   int
	workers    int
	stop       chan struct{}
	stopOnce   sync.Once
	wg         *sync.WaitGroup
	handler    func(Task) error
	actionChan chan Task
}

func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			for {
				select {
				case task := <-w.actionChan:
					w.handle(task)
				case <-w.stop:
					logger.Info("stopping worker", zap.String("worker", w.name), zap.Int("id", id))
					return
				}
			}
		}(i)
	}
	logger.Info("worker started", zap.String("worker", w.name), zap.Int("workers", w.workers), zap.Int("capacity", w.capacity))
}

func (w *Worker) handle(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in worker", zap.String("worker", w.name), zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := w.handler(task); err != nil {
		logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Error(err))
	}
}

// Submit enqueues a task without blocking the caller. Workers submit
// follow-up tasks themselves, so a full queue hands the send off to a
// goroutine instead of waiting on it.
func (w *Worker) Submit(task Task) {
	select {
	case w.actionChan <- task:
	default:
		go func() {
			select {
			case w.actionChan <- task:
			case <-w.stop:
			}
		}()
	}
}

func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	return nil
}

func NewWorker(name string, wg *sync.WaitGroup, handler func(Task) error, workers int, capacity int) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		actionChan: make(chan Task, capacity),
		name:       name,
		capacity:   capacity,
		workers:    workers,
		wg:         wg,
		stop:       make(chan struct{}),
		handler:    handler,
	}
}

// RunFunc is a handler for workers whose tasks are plain closures.
func RunFunc(task Task) error {
	fn, ok := task.(func())
	if !ok {
		return fmt.Errorf("unexpected task type %T", task)
	}
	fn()
	return nil
}
