// Package internal contains the implementation packages of assetflow.
//
// # Package Organization
//
//   - pathtable: Source globs, destination directories and watch globs per asset class
//   - task: Named tasks with Series and Parallel composition
//   - plugins: Transform chains for html, css, js, images and fonts
//   - build: Per-class build runner with a worker pool, content cache and metrics
//   - watcher: Debounced glob subscriptions over fsnotify
//   - server: Static dev server with live reload over WebSocket
//   - orchestrator: Task registry wiring the above into build, watch and dev
//   - config: Viper backed configuration with validation
//   - errors: Asset, step and aggregate error types
//   - logging: Structured logging on log/slog
//   - validation: Path, glob and origin checks
//   - version: Build metadata
//   - testutils: Project fixtures for tests
//
// # Flow
//
// The cmd package loads a config.Config and hands it to orchestrator.New,
// which builds the path table, the plugin chains and the task registry.
// Tasks run the build runner per class; the watcher reruns a class task
// when its watch glob changes, and the server tells connected browsers to
// swap the stylesheet or reload the page.
package internal
