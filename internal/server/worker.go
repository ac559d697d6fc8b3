package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rthome/SpeedCalc/internal/vm"
)

var errWorkerStopped = errors.New("worker stopped")

type workRequest struct {
	fn   func(*vm.VM) any
	done chan workResult
}

type workResult struct {
	value any
	err   error
}

// Worker serializes all access to a VM and the sessions derived from it
// through a single goroutine. Handlers must not touch a VM directly.
type Worker struct {
	vm       *vm.VM
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker owning v and starts its goroutine.
func NewWorker(v *vm.VM) *Worker {
	w := &Worker{
		vm:       v,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) execute(fn func(*vm.VM) any) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker recovered from panic: %v", r)
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.vm)
	return result
}

// Do runs fn on the worker goroutine and waits for it. A panic in fn is
// returned as an error.
func (w *Worker) Do(fn func(*vm.VM) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errWorkerStopped
	}
}

// Stop shuts down the worker goroutine. Requests still queued are
// abandoned and their callers get an error. Stop may be called more
// than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
