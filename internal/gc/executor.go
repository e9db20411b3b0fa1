package gc

import "sync"

// executor is the background collector's thread: a single goroutine
// draining a queue of tasks in order. Hades schedules at most one
// collection task at a time, but the queue keeps shutdown simple and
// deterministic.
type executor struct {
	mu     sync.Mutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

func newExecutor() *executor {
	e := &executor{tasks: make(chan func(), 4)}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for task := range e.tasks {
			task()
		}
	}()
	return e
}

// add enqueues a task. Panics if the executor has shut down; the heap's
// lifecycle guarantees it never does.
func (e *executor) add(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		panic("task submitted to a closed executor")
	}
	e.tasks <- task
}

// shutdown waits for queued tasks to finish and stops the goroutine.
func (e *executor) shutdown() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
