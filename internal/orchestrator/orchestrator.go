// Package orchestrator wires the path table, the transform runner, the
// watchers and the dev server into the named task graph behind the CLI.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/config"
	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/pathtable"
	"github.com/conneroisu/assetflow/internal/plugins"
	"github.com/conneroisu/assetflow/internal/server"
	"github.com/conneroisu/assetflow/internal/task"
	"github.com/conneroisu/assetflow/internal/watcher"
)

// Task names.
const (
	TaskClean      = "clean:build"
	TaskBuild      = "build"
	TaskWatch      = "watch"
	TaskWebserver  = "webserver"
	TaskDev        = "dev"
	TaskDefault    = "default"
	TaskCacheClear = "cache:clear"
)

// stepServeWatch names the second step of the dev loop.
const stepServeWatch = "webserver+watch"

// Notifier receives the outcome of class builds run by the dev loop.
type Notifier interface {
	Notify(kind server.ReloadKind, target string, content []byte)
	ReportErrors(err error)
}

// Options configures an Orchestrator.
type Options struct {
	// Root is the project directory. Defaults to the working directory.
	Root   string
	Logger logging.Logger
	// Chains replaces the class chains built from the configuration.
	Chains map[pathtable.AssetClass]build.Chain
	// Cache replaces the content cache under build.cache_dir.
	Cache *build.Cache
	// Notifier replaces the dev server as the receiver of reload requests.
	Notifier Notifier
	// Listener is used by the webserver task instead of server.host:port.
	Listener net.Listener
}

// Orchestrator owns the task registry. The registry and the path table are
// built by New and never change afterwards.
type Orchestrator struct {
	cfg      *config.Config
	root     string
	table    *pathtable.Table
	runner   *build.Runner
	registry *task.Registry
	logger   logging.Logger
	listener net.Listener

	notifyMutex sync.RWMutex
	notifier    Notifier
	classErrors map[pathtable.AssetClass]error
}

// New builds the path table, the runner and the task graph described by cfg.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	table, err := cfg.PathTable()
	if err != nil {
		return nil, err
	}

	chains := opts.Chains
	if chains == nil {
		chains, err = plugins.Chains(cfg, root)
		if err != nil {
			return nil, errors.NewConfigError(err.Error())
		}
	}

	cache := opts.Cache
	if cache == nil {
		cache = newCache(root, cfg.Build.CacheDir, opts.Logger)
	}

	o := &Orchestrator{
		cfg:   cfg,
		root:  root,
		table: table,
		runner: build.NewRunner(table, chains, build.Options{
			Root:        root,
			Workers:     cfg.Build.Workers,
			FileTimeout: cfg.Build.FileTimeout,
			Cache:       cache,
			Logger:      opts.Logger,
		}),
		registry:    task.NewRegistry(),
		logger:      opts.Logger.WithComponent("orchestrator"),
		listener:    opts.Listener,
		notifier:    opts.Notifier,
		classErrors: make(map[pathtable.AssetClass]error),
	}

	if err := o.register(); err != nil {
		return nil, err
	}
	return o, nil
}

// newCache keeps processed content in memory and under cacheDir so it
// survives restarts and can be cleared by a separate cache:clear run.
func newCache(root, cacheDir string, logger logging.Logger) *build.Cache {
	dir := filepath.Join(root, filepath.FromSlash(cacheDir))
	store := build.NewTieredStore(build.NewMemoryStore(64<<20, 0), build.NewDiskStore(dir))
	return build.NewCache(store, logger)
}

func (o *Orchestrator) register() error {
	clean := task.New(TaskClean, func(ctx context.Context) error { return o.Clean(ctx) })

	classes := make([]task.Runnable, 0, len(pathtable.Classes))
	for _, class := range o.table.Classes() {
		class := class
		classes = append(classes, task.New(class.TaskName(), func(ctx context.Context) error {
			return o.buildClass(ctx, class)
		}))
	}

	buildAll := task.Series(clean, task.Parallel(classes...))
	watch := task.New(TaskWatch, o.Watch)
	webserver := task.New(TaskWebserver, o.Serve)
	dev := task.Series(
		task.New(TaskBuild, o.devBuild),
		task.New(stepServeWatch, func(ctx context.Context) error {
			return o.serveAndWatch(ctx, webserver, watch)
		}),
	)
	cacheClear := task.New(TaskCacheClear, func(context.Context) error { return o.ClearCache() })

	var err error
	for _, c := range classes {
		err = multierr.Append(err, o.registry.Register(c.Name(), c))
	}
	err = multierr.Append(err, o.registry.Register(TaskClean, clean))
	err = multierr.Append(err, o.registry.Register(TaskBuild, buildAll))
	err = multierr.Append(err, o.registry.Register(TaskWatch, watch))
	err = multierr.Append(err, o.registry.Register(TaskWebserver, webserver))
	err = multierr.Append(err, o.registry.Register(TaskDev, dev))
	err = multierr.Append(err, o.registry.Register(TaskDefault, dev.Named(TaskDefault)))
	err = multierr.Append(err, o.registry.Register(TaskCacheClear, cacheClear))
	return err
}

// Table returns the path table.
func (o *Orchestrator) Table() *pathtable.Table { return o.table }

// Runner returns the transform runner.
func (o *Orchestrator) Runner() *build.Runner { return o.runner }

// Tasks returns every registered task name.
func (o *Orchestrator) Tasks() []string { return o.registry.Names() }

// Run runs the task registered under name.
func (o *Orchestrator) Run(ctx context.Context, name string) error {
	return o.registry.Run(ctx, name)
}

// Build cleans the build root, then builds every class in parallel.
func (o *Orchestrator) Build(ctx context.Context) error {
	return o.Run(ctx, TaskBuild)
}

// Dev builds, then serves and watches until ctx is cancelled.
func (o *Orchestrator) Dev(ctx context.Context) error {
	return o.Run(ctx, TaskDev)
}

// Clean removes the build root.
func (o *Orchestrator) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buildRoot := o.table.BuildRoot()
	if err := os.RemoveAll(o.abs(buildRoot)); err != nil {
		return errors.NewCleanError(buildRoot, err)
	}
	o.logger.Info(ctx, "Cleaned build root", "path", buildRoot)
	return nil
}

// ClearCache empties the content cache.
func (o *Orchestrator) ClearCache() error {
	if err := o.runner.ClearCache(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	o.logger.Info(context.Background(), "Cache cleared")
	return nil
}

// Watch subscribes every class to its watch glob and rebuilds the class on
// change until ctx is cancelled. No initial build is run.
func (o *Orchestrator) Watch(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var subs []*watcher.Subscription
	for _, class := range o.table.Classes() {
		class := class
		spec, _ := o.table.Spec(class)
		sub, err := watcher.Watch(watchCtx, class, spec, watcher.Options{
			Root:     o.root,
			Debounce: o.cfg.Build.Debounce,
			Logger:   o.logger,
		}, func(ctx context.Context) error {
			return o.buildClass(ctx, class)
		})
		if err != nil {
			cancel()
			waitAll(subs)
			return err
		}
		subs = append(subs, sub)
	}

	<-ctx.Done()
	cancel()
	waitAll(subs)
	return nil
}

func waitAll(subs []*watcher.Subscription) {
	for _, sub := range subs {
		<-sub.Done()
	}
}

// Serve runs the dev server over the build root until ctx is cancelled.
func (o *Orchestrator) Serve(ctx context.Context) error {
	srv := server.New(o.cfg.Server, o.abs(o.table.BuildRoot()), o.runner, o.logger)

	o.notifyMutex.Lock()
	if o.notifier == nil {
		o.notifier = srv
	}
	o.notifyMutex.Unlock()

	if o.listener != nil {
		return srv.Serve(ctx, o.listener)
	}
	return srv.Start(ctx)
}

// serveAndWatch runs items in parallel until ctx is cancelled. The first
// item to fail stops the others. Cancellation of ctx is returned as
// ctx.Err().
func (o *Orchestrator) serveAndWatch(ctx context.Context, items ...task.Runnable) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopping := make([]task.Runnable, len(items))
	for i, item := range items {
		item := item
		stopping[i] = task.New(item.Name(), func(ctx context.Context) error {
			err := item.Run(ctx)
			if err != nil {
				o.logger.Error(ctx, err, "Dev loop task failed, stopping", "task", item.Name())
				cancel()
			}
			return err
		})
	}

	if err := task.Parallel(stopping...).Run(loopCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// devBuild runs the build task but lets the dev loop continue past soft
// file failures: they are reported to the browser instead.
func (o *Orchestrator) devBuild(ctx context.Context) error {
	err := o.Build(ctx)
	if err == nil || fatal(ctx, err) {
		return err
	}
	o.logger.Warn(ctx, err, "Initial build finished with errors")
	return nil
}

// buildClass runs one class and tells the notifier about the outcome.
func (o *Orchestrator) buildClass(ctx context.Context, class pathtable.AssetClass) error {
	op := logging.StartOperation(o.logger, class.TaskName())

	result, err := o.runner.RunClass(ctx, class)
	for _, warning := range result.Warnings {
		o.logger.Warn(ctx, warning, "Nothing to build", "class", class.String())
	}
	o.recordClassError(class, err)

	if err != nil {
		op.EndWithError(ctx, err, "files", result.FilesWritten, "failed", len(result.Errors))
		return err
	}
	op.End(ctx, "files", result.FilesWritten)
	o.notify(class, result)
	return nil
}

func (o *Orchestrator) recordClassError(class pathtable.AssetClass, err error) {
	o.notifyMutex.Lock()
	if err == nil || stderrors.Is(err, context.Canceled) {
		delete(o.classErrors, class)
	} else {
		o.classErrors[class] = err
	}
	var combined error
	for _, c := range pathtable.Classes {
		combined = multierr.Append(combined, o.classErrors[c])
	}
	notifier := o.notifier
	o.notifyMutex.Unlock()

	if notifier != nil {
		notifier.ReportErrors(combined)
	}
}

func (o *Orchestrator) notify(class pathtable.AssetClass, result build.BuildResult) {
	o.notifyMutex.RLock()
	notifier := o.notifier
	o.notifyMutex.RUnlock()
	if notifier == nil {
		return
	}

	if class == pathtable.CSS {
		if target, content, ok := o.stylesheet(result); ok {
			notifier.Notify(server.StyleOnly, target, content)
			return
		}
	}
	notifier.Notify(server.FullReload, "", nil)
}

// stylesheet returns the URL path and content of the minified stylesheet
// written by a css build.
func (o *Orchestrator) stylesheet(result build.BuildResult) (string, []byte, bool) {
	for _, out := range result.Outputs {
		if !strings.HasSuffix(out, ".min.css") {
			continue
		}
		content, err := os.ReadFile(o.abs(out))
		if err != nil {
			return "", nil, false
		}
		rel := strings.TrimPrefix(out, o.table.BuildRoot()+"/")
		return path.Join("/", rel), content, true
	}
	return "", nil, false
}

func (o *Orchestrator) abs(rel string) string {
	return filepath.Join(o.root, filepath.FromSlash(rel))
}

// fatal reports whether err must stop the dev loop: cancellation of ctx, a
// clean or configuration failure, or anything that is not a per-file error.
// Per-file timeouts are per-file errors.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	for _, leaf := range errors.Flatten(err) {
		var ae *errors.AssetError
		if !stderrors.As(leaf, &ae) || ae.Fatal() {
			return true
		}
	}
	return false
}
