package task

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetflow/internal/errors"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) task(name string, err error) *Task {
	return New(name, func(ctx context.Context) error {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return err
	})
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestSeriesRunsInOrder(t *testing.T) {
	rec := &recorder{}
	s := Series(rec.task("a", nil), rec.task("b", nil), rec.task("c", nil))

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, rec.ran())
}

func TestSeriesStopsAtFirstFailure(t *testing.T) {
	rec := &recorder{}
	boom := stderrors.New("boom")
	s := Series(rec.task("clean", nil), rec.task("compile", boom), rec.task("never", nil))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"clean", "compile"}, rec.ran())

	var step *errors.StepError
	require.ErrorAs(t, err, &step)
	assert.Equal(t, 1, step.Index)
	assert.Equal(t, "compile", step.Name)
	assert.ErrorIs(t, err, boom)
}

func TestSeriesHonoursCancellation(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	first := New("cancel", func(ctx context.Context) error {
		cancel()
		return nil
	})

	err := Series(first, rec.task("skipped", nil)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.ran())
}

func TestParallelWaitsForAll(t *testing.T) {
	var finished atomic.Int32
	errA := stderrors.New("a failed")
	errC := stderrors.New("c failed")

	slow := func(name string, err error) *Task {
		return New(name, func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			return err
		})
	}

	err := Parallel(slow("a", errA), slow("b", nil), slow("c", errC)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), finished.Load(), "every branch completes before the parallel returns")

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{errA, errC}, agg.Errors)
	assert.ErrorIs(t, err, errC)
}

func TestParallelRunsConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})

	branch := func(name string) *Task {
		return New(name, func(ctx context.Context) error {
			started.Done()
			<-release
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- Parallel(branch("x"), branch("y")).Run(context.Background()) }()

	started.Wait()
	close(release)
	assert.NoError(t, <-done)
}

func TestParallelRecoversPanics(t *testing.T) {
	bad := New("bad", func(ctx context.Context) error { panic("kaboom") })
	good := New("good", func(ctx context.Context) error { return nil })

	err := Parallel(bad, good).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestNestedCompositionIsRerunnable(t *testing.T) {
	rec := &recorder{}
	build := Series(rec.task("clean", nil), Parallel(rec.task("css", nil)))

	require.NoError(t, build.Run(context.Background()))
	require.NoError(t, build.Run(context.Background()))
	assert.Equal(t, []string{"clean", "css", "clean", "css"}, rec.ran())
}

func TestCompositionName(t *testing.T) {
	c := Series(New("a", nil), Parallel(New("b", nil), New("c", nil)))
	assert.Equal(t, "series[a parallel[b c]]", c.Name())
	assert.Equal(t, "build", c.Named("build").Name())
	assert.Len(t, c.Items(), 2)
	assert.Equal(t, ModeSeries, c.Mode())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}

	require.NoError(t, reg.Register("css:build", rec.task("css:build", nil)))
	require.NoError(t, reg.Register("build", Series(rec.task("clean:build", nil))))

	err := reg.Register("css:build", rec.task("other", nil))
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, reg.Register("", rec.task("x", nil)))
	assert.Error(t, reg.Register("nil", nil))

	build, ok := reg.Lookup("build")
	require.True(t, ok)
	assert.Equal(t, "build", build.Name())

	assert.Equal(t, []string{"build", "css:build"}, reg.Names())

	require.NoError(t, reg.Run(context.Background(), "build"))
	assert.Equal(t, []string{"clean:build"}, rec.ran())

	assert.ErrorContains(t, reg.Run(context.Background(), "missing"), "not registered")
}
