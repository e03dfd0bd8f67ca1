// Package task holds named, runnable units of work and the Series and
// Parallel compositions that combine them into pipelines.
//
// Compositions keep no run state. Running one twice performs the same work
// twice, which is what the watcher relies on when it re-triggers a class.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/assetflow/internal/errors"
)

// Runnable is anything the registry can execute.
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
}

// Func is the body of a leaf task.
type Func func(ctx context.Context) error

// Task is a named leaf.
type Task struct {
	name string
	fn   Func
}

// New creates a leaf task.
func New(name string, fn Func) *Task {
	return &Task{name: name, fn: fn}
}

func (t *Task) Name() string { return t.name }

func (t *Task) Run(ctx context.Context) error {
	return t.fn(ctx)
}

// Mode selects how a composition runs its items.
type Mode int

const (
	ModeSeries Mode = iota
	ModeParallel
)

func (m Mode) String() string {
	if m == ModeParallel {
		return "parallel"
	}
	return "series"
}

// Composition is an ordered group of runnables.
type Composition struct {
	name  string
	mode  Mode
	items []Runnable
}

// Series runs items strictly in order and stops at the first failure.
func Series(items ...Runnable) *Composition {
	return &Composition{mode: ModeSeries, items: items}
}

// Parallel starts every item at once and waits for all of them, whether or
// not some fail.
func Parallel(items ...Runnable) *Composition {
	return &Composition{mode: ModeParallel, items: items}
}

// Named returns a copy of c carrying name.
func (c *Composition) Named(name string) *Composition {
	return &Composition{name: name, mode: c.mode, items: c.items}
}

// Name returns the registered name or a description of the shape.
func (c *Composition) Name() string {
	if c.name != "" {
		return c.name
	}
	names := make([]string, len(c.items))
	for i, item := range c.items {
		names[i] = item.Name()
	}
	return fmt.Sprintf("%s%v", c.mode, names)
}

func (c *Composition) Mode() Mode { return c.mode }

// Items returns the direct children of c.
func (c *Composition) Items() []Runnable {
	return append([]Runnable(nil), c.items...)
}

// Run executes the composition.
//
// A series failure is returned as *errors.StepError naming the failing item;
// later items are not started. A parallel composition returns
// *errors.AggregateError holding every failure in item order.
func (c *Composition) Run(ctx context.Context) error {
	if c.mode == ModeParallel {
		return c.runParallel(ctx)
	}
	return c.runSeries(ctx)
}

func (c *Composition) runSeries(ctx context.Context) error {
	for i, item := range c.items {
		if err := ctx.Err(); err != nil {
			return &errors.StepError{Index: i, Name: item.Name(), Err: err}
		}
		if err := item.Run(ctx); err != nil {
			return &errors.StepError{Index: i, Name: item.Name(), Err: err}
		}
	}
	return nil
}

func (c *Composition) runParallel(ctx context.Context) error {
	errs := make([]error, len(c.items))

	var wg sync.WaitGroup
	for i, item := range c.items {
		wg.Add(1)
		go func(i int, item Runnable) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %s panicked: %v", item.Name(), r)
				}
			}()
			errs[i] = item.Run(ctx)
		}(i, item)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &errors.AggregateError{Errors: failed}
}
