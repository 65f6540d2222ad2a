// Package fence implements the dependency tokens that order tasks touching
// shared buffers.
//
// A Fence stands for a set of in-flight tasks. It completes when every task
// in the set has finished. The nil *Fence is the empty set and is always
// complete. Fences are immutable once created, so they may be joined and
// waited on from any goroutine.
package fence

import (
	"context"
	"fmt"
)

// Fence is a dependency token. A task fence is signaled by exactly one task;
// a joined fence holds the task fences it was built from.
type Fence struct {
	id    uint64
	done  chan struct{} // task fences only
	tasks []*Fence      // joined fences only; every entry is a task fence
}

// New creates the fence of a task with the given id. The returned function
// marks the task finished; it must be called exactly once.
func New(id uint64) (*Fence, func()) {
	f := &Fence{id: id, done: make(chan struct{})}
	return f, func() { close(f.done) }
}

// ID returns the task id of a task fence, or 0 for joined and nil fences.
func (f *Fence) ID() uint64 {
	if f == nil {
		return 0
	}
	return f.id
}

// IsComplete reports whether every task in the fence has finished.
// It never blocks.
func (f *Fence) IsComplete() bool {
	if f == nil {
		return true
	}
	if f.done != nil {
		return isClosed(f.done)
	}
	for _, t := range f.tasks {
		if !isClosed(t.done) {
			return false
		}
	}
	return true
}

// Wait blocks until the fence completes.
func (f *Fence) Wait() {
	if f == nil {
		return
	}
	if f.done != nil {
		<-f.done
		return
	}
	for _, t := range f.tasks {
		<-t.done
	}
}

// WaitContext blocks until the fence completes or ctx is done.
func (f *Fence) WaitContext(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if f.done != nil {
		return waitChan(ctx, f.done)
	}
	for _, t := range f.tasks {
		if err := waitChan(ctx, t.done); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of unfinished tasks in the fence.
func (f *Fence) Pending() int {
	n := 0
	f.each(func(t *Fence) {
		if !isClosed(t.done) {
			n++
		}
	})
	return n
}

// String describes the fence for logs.
func (f *Fence) String() string {
	switch {
	case f == nil:
		return "fence(complete)"
	case f.done != nil:
		return fmt.Sprintf("fence(task %d)", f.id)
	default:
		return fmt.Sprintf("fence(join of %d)", len(f.tasks))
	}
}

// Join returns a fence that completes once all of fs complete. It never
// blocks: finished tasks are dropped and duplicates are merged, so a fence
// that is joined repeatedly (such as a buffer's read fence) only holds the
// tasks still running.
func Join(fs ...*Fence) *Fence {
	var tasks []*Fence
	seen := make(map[*Fence]struct{})
	for _, f := range fs {
		f.each(func(t *Fence) {
			if isClosed(t.done) {
				return
			}
			if _, ok := seen[t]; ok {
				return
			}
			seen[t] = struct{}{}
			tasks = append(tasks, t)
		})
	}

	switch len(tasks) {
	case 0:
		return nil
	case 1:
		return tasks[0]
	default:
		return &Fence{tasks: tasks}
	}
}

func (f *Fence) each(fn func(t *Fence)) {
	if f == nil {
		return
	}
	if f.done != nil {
		fn(f)
		return
	}
	for _, t := range f.tasks {
		fn(t)
	}
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func waitChan(ctx context.Context, c chan struct{}) error {
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
