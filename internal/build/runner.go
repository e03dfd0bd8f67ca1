package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

// BuildResult is the outcome of one RunClass invocation.
type BuildResult struct {
	Class        pathtable.AssetClass
	FilesWritten int
	// Outputs lists the written files, project-relative, in source order.
	Outputs  []string
	Errors   []error
	Warnings []error
	Duration time.Duration
}

// Failed reports whether any file of the class failed.
func (r BuildResult) Failed() bool {
	return len(r.Errors) > 0
}

// Options configures a Runner.
type Options struct {
	// Root is the project directory every path is relative to.
	Root string
	// Workers bounds the number of files processed at once.
	Workers int
	// FileTimeout bounds the chain of a single file.
	FileTimeout time.Duration
	Cache       *Cache
	Logger      logging.Logger
}

// Runner executes class chains. It is safe for concurrent use by different
// classes.
type Runner struct {
	table       *pathtable.Table
	chains      map[pathtable.AssetClass]Chain
	root        string
	workers     int
	fileTimeout time.Duration
	cache       *Cache
	metrics     *BuildMetrics
	logger      logging.Logger
}

func NewRunner(table *pathtable.Table, chains map[pathtable.AssetClass]Chain, opts Options) *Runner {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(NewMemoryStore(64<<20, 0), opts.Logger)
	}

	return &Runner{
		table:       table,
		chains:      chains,
		root:        opts.Root,
		workers:     opts.Workers,
		fileTimeout: opts.FileTimeout,
		cache:       opts.Cache,
		metrics:     NewBuildMetrics(),
		logger:      opts.Logger.WithComponent("runner"),
	}
}

// Table returns the path table the runner reads from.
func (r *Runner) Table() *pathtable.Table { return r.table }

// Root returns the project directory.
func (r *Runner) Root() string { return r.root }

// Metrics returns the build counters.
func (r *Runner) Metrics() BuildMetrics { return r.metrics.GetSnapshot() }

// CacheStats returns the content cache counters.
func (r *Runner) CacheStats() CacheStats { return r.cache.Stats() }

// ClearCache empties the content cache so the next build reprocesses every
// cached step.
func (r *Runner) ClearCache() error {
	return r.cache.Clear()
}

// RunClass builds every source file of class.
//
// Per-file failures are collected in BuildResult.Errors and never stop the
// other files. The returned error is nil when no file failed, the combined
// file errors otherwise, or the context error on cancellation.
func (r *Runner) RunClass(ctx context.Context, class pathtable.AssetClass) (BuildResult, error) {
	result := BuildResult{Class: class}
	start := time.Now()

	spec, ok := r.table.Spec(class)
	if !ok {
		return result, errors.NewConfigError(fmt.Sprintf("no paths for class %s", class))
	}
	chain, ok := r.chains[class]
	if !ok {
		return result, errors.NewConfigError(fmt.Sprintf("no transform chain for class %s", class))
	}

	files, err := r.resolve(spec)
	if err != nil {
		return result, errors.NewConfigError(fmt.Sprintf("class %s: %v", class, err))
	}
	if len(files) == 0 {
		warning := errors.NewSourceNotFound(class.String(), spec.SourceGlob)
		result.Warnings = append(result.Warnings, warning)
		r.logger.Warn(ctx, warning, "Source glob matched no files", "class", class.String())
	}

	outcomes := make([]fileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i] = r.runFile(gctx, class, spec, chain, file)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		result.Outputs = append(result.Outputs, o.written...)
		if o.err != nil {
			result.Errors = append(result.Errors, o.err)
		}
	}
	result.FilesWritten = len(result.Outputs)
	result.Duration = time.Since(start)
	r.metrics.RecordBuild(result)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if result.Failed() {
		r.logger.Error(ctx, nil, "Class build failed",
			"class", class.String(), "errors", len(result.Errors), "files_written", result.FilesWritten)
		return result, multierr.Combine(result.Errors...)
	}

	r.logger.Info(ctx, "Class built",
		"class", class.String(), "files_written", result.FilesWritten, "duration", result.Duration)
	return result, nil
}

// resolve expands the source glob into lexically sorted project-relative
// paths.
func (r *Runner) resolve(spec pathtable.PathSpec) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(r.root), spec.SourceGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid source glob %q: %w", spec.SourceGlob, err)
	}
	sort.Strings(matches)
	return matches, nil
}

type fileOutcome struct {
	written []string
	err     error
}

// runFile interprets the chain for one file in memory and writes its outputs
// only when every step succeeded.
func (r *Runner) runFile(ctx context.Context, class pathtable.AssetClass, spec pathtable.PathSpec, chain Chain, file string) fileOutcome {
	ctx, cancel := context.WithTimeout(ctx, r.fileTimeout)
	defer cancel()

	content, err := fs.ReadFile(os.DirFS(r.root), file)
	if err != nil {
		return fileOutcome{err: errors.NewTransformError(class.String(), file, "read", err)}
	}

	asset := Asset{
		Source:  file,
		Rel:     relativeTo(spec.SourceBase(), file),
		Content: content,
	}

	var outputs []output
	for _, step := range chain {
		switch step.kind {
		case stepRename:
			asset.Rel = step.rename(asset.Rel)
		case stepWrite:
			outputs = append(outputs, step.outputs(asset)...)
		case stepTransform:
			next, err := r.transform(ctx, class, step, asset)
			if err != nil {
				return fileOutcome{err: errors.NewTransformError(class.String(), file, step.name, err)}
			}
			asset = next
		}
	}

	var written []string
	for _, out := range outputs {
		target := path.Join(spec.DestDir, out.rel)
		if err := r.write(target, out.content); err != nil {
			return fileOutcome{written: written, err: errors.NewWriteError(class.String(), target, err)}
		}
		written = append(written, target)
	}

	return fileOutcome{written: written}
}

// transform runs one step, through the cache when the step asks for it, and
// gives up when the file deadline passes even if the collaborator does not
// watch ctx.
func (r *Runner) transform(ctx context.Context, class pathtable.AssetClass, step Step, in Asset) (Asset, error) {
	type reply struct {
		asset Asset
		err   error
	}
	done := make(chan reply, 1)

	go func() {
		if !step.cached {
			a, err := step.fn(ctx, in)
			done <- reply{a, err}
			return
		}

		key := Key(class.String(), step.name, in.Content)
		content, hit, err := r.cache.Do(key, func() ([]byte, error) {
			a, err := step.fn(ctx, in)
			return a.Content, err
		})
		if hit {
			r.logger.Debug(ctx, "Cache hit", "class", class.String(), "file", in.Source)
		}
		out := in
		out.Content = content
		out.Map = nil
		done <- reply{out, err}
	}()

	select {
	case rep := <-done:
		return rep.asset, rep.err
	case <-ctx.Done():
		return Asset{}, fmt.Errorf("gave up after %s: %w", r.fileTimeout, ctx.Err())
	}
}

func (r *Runner) write(target string, content []byte) error {
	full := filepath.Join(r.root, filepath.FromSlash(target))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func relativeTo(base, file string) string {
	if base == "" || base == "." {
		return file
	}
	return strings.TrimPrefix(file, base+"/")
}
