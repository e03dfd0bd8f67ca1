package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps task names to runnables. It is filled once at startup.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Runnable
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Runnable)}
}

// Register adds r under name. Names are unique.
func (r *Registry) Register(name string, runnable Runnable) error {
	if name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if runnable == nil {
		return fmt.Errorf("task %s has no body", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task %s is already registered", name)
	}

	if c, ok := runnable.(*Composition); ok && c.name == "" {
		runnable = c.Named(name)
	}
	r.tasks[name] = runnable
	return nil
}

// Lookup returns the runnable registered under name.
func (r *Registry) Lookup(name string) (Runnable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runnable, ok := r.tasks[name]
	return runnable, ok
}

// Names returns every registered name in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the runnable registered under name.
func (r *Registry) Run(ctx context.Context, name string) error {
	runnable, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("task %s is not registered", name)
	}
	return Run(ctx, runnable)
}

// Run executes runnable.
func Run(ctx context.Context, runnable Runnable) error {
	return runnable.Run(ctx)
}
