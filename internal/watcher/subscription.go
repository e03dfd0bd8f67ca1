package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/pathtable"
)

// Subscription binds one watch glob to a serialized task.
type Subscription struct {
	Class     pathtable.AssetClass
	WatchGlob string
	watcher   *FileWatcher
	trigger   *SerialTrigger
	done      chan struct{}
}

// Options configures Watch.
type Options struct {
	Root     string
	Debounce time.Duration
	Logger   logging.Logger
}

// Watch subscribes to changes matching the watch glob of spec. Every
// debounced batch of matching changes triggers onTrigger through a
// SerialTrigger. Failures of onTrigger are logged and the subscription keeps
// running until ctx is done.
func Watch(ctx context.Context, class pathtable.AssetClass, spec pathtable.PathSpec, opts Options, onTrigger func(ctx context.Context) error) (*Subscription, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	logger := opts.Logger.With("class", class.String(), "glob", spec.WatchGlob)

	fw, err := NewFileWatcher(opts.Root, opts.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher for %s: %w", class, err)
	}

	base := spec.WatchBase()
	if err := watchBase(fw, opts.Root, base); err != nil {
		fw.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", base, err)
	}

	fw.AutoAdd(func(rel string) bool {
		return within(base, rel) || within(rel, base)
	})
	fw.AddFilter(NoGitFilter)
	fw.AddFilter(NoTempFilter)
	fw.AddFilter(GlobFilter(spec.WatchGlob))

	trigger := NewSerialTrigger(onTrigger, func(err error) {
		logger.Error(ctx, err, "Watch-triggered task failed")
	})

	fw.AddHandler(func(events []ChangeEvent) error {
		for _, e := range events {
			logger.Debug(ctx, "Change detected", "path", e.Path, "type", e.Type.String())
		}
		trigger.Trigger()
		return nil
	})

	sub := &Subscription{
		Class:     class,
		WatchGlob: spec.WatchGlob,
		watcher:   fw,
		trigger:   trigger,
		done:      make(chan struct{}),
	}

	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}

	go func() {
		defer close(sub.done)
		trigger.Start(ctx)
		fw.Stop()
	}()

	logger.Info(ctx, "Watching for changes", "base", base)
	return sub, nil
}

// Done is closed once the subscription has shut down after ctx ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Runs returns how many triggered runs have completed.
func (s *Subscription) Runs() int64 {
	return s.trigger.Runs()
}

// Watched returns the directories currently watched, relative to the root.
func (s *Subscription) Watched() []string {
	return s.watcher.WatchList()
}

// watchBase watches base recursively. A base that does not exist yet is
// approached from its nearest existing ancestor; AutoAdd picks it up once
// it is created.
func watchBase(fw *FileWatcher, root, base string) error {
	dir := base
	for {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir)))
		switch {
		case err == nil && info.IsDir():
			if dir == base {
				return fw.AddRecursive(dir)
			}
			return fw.AddPath(dir)
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return err
		}
		if dir == "." || dir == "" {
			return fmt.Errorf("project root %s does not exist", root)
		}
		dir = path.Dir(dir)
	}
}

func within(parent, child string) bool {
	if parent == "." || parent == "" || parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}
