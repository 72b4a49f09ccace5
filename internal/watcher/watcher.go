package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"scanrouter/internal/auditlog"
	"scanrouter/internal/config"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/materials"
	"scanrouter/internal/notifications"
	"scanrouter/internal/printer"
	"scanrouter/internal/qrdecode"
	"scanrouter/internal/services"
)

// Deps collects the shared services a site watcher operates against. The
// audit log and journal are shared across all sites; decoder, resolver, and
// dispatcher are stateless and safe for concurrent use.
type Deps struct {
	Journal    *journal.Store
	Audit      *auditlog.Log
	Decoder    qrdecode.Decoder
	Resolver   *materials.Resolver
	Dispatcher printer.Dispatcher
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// Watcher owns one site's watch loop and in-flight files.
type Watcher struct {
	cfg   *config.Config
	site  config.Site
	paths config.SitePaths
	deps  Deps

	logger *slog.Logger
	sem    chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	stalled   atomic.Int64
}

// New builds a watcher for the given site key.
func New(cfg *config.Config, siteKey string, deps Deps) (*Watcher, error) {
	site, ok := cfg.Sites[siteKey]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, siteKey, "watcher", "unknown site", nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	maxInFlight := cfg.Watch.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Watcher{
		cfg:      cfg,
		site:     site,
		paths:    cfg.SitePaths(siteKey),
		deps:     deps,
		logger:   deps.Logger.With(logging.String(logging.FieldSite, siteKey)),
		sem:      make(chan struct{}, maxInFlight),
		inFlight: make(map[string]struct{}),
	}, nil
}

// Site returns the watched site key.
func (w *Watcher) Site() string {
	return w.paths.Key
}

// Counts reports how many files this watcher has terminalized or stalled.
func (w *Watcher) Counts() (processed, failed, stalled int64) {
	return w.processed.Load(), w.failed.Load(), w.stalled.Load()
}

// Run watches the in folder until the context is canceled. Filesystem
// notifications provide low latency; the poll ticker guarantees progress when
// events are dropped or the folder lives on a network mount that does not
// emit them.
func (w *Watcher) Run(ctx context.Context) error {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, w.paths.Key, "watch", "create filesystem watcher", err)
	}
	defer notify.Close()

	if err := notify.Add(w.paths.In); err != nil {
		return services.Wrap(services.ErrConfiguration, w.paths.Key, "watch",
			fmt.Sprintf("watch %s", w.paths.In), err)
	}

	pollInterval := time.Duration(w.cfg.Watch.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("watching site folder",
		logging.String("in_dir", w.paths.In),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	w.rescan(ctx)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case event, ok := <-notify.Events:
			if !ok {
				w.wg.Wait()
				return services.Wrap(services.ErrStall, w.paths.Key, "watch", "event stream closed", nil)
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.observe(ctx, filepath.Base(event.Name))
		case watchErr, ok := <-notify.Errors:
			if !ok {
				w.wg.Wait()
				return services.Wrap(services.ErrStall, w.paths.Key, "watch", "error stream closed", nil)
			}
			w.logger.Warn("filesystem watch error; poll rescans still cover the folder",
				logging.Error(watchErr),
				logging.String(logging.FieldEventType, "watch_error"),
			)
		case <-ticker.C:
			w.rescan(ctx)
		}
	}
}

// rescan sweeps the in folder for files that notifications missed.
func (w *Watcher) rescan(ctx context.Context) {
	entries, err := os.ReadDir(w.paths.In)
	if err != nil {
		w.logger.Warn("rescan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rescan_failed"),
		)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.observe(ctx, entry.Name())
	}
}

// observe launches processing for a candidate filename unless it is already
// in flight. Non-PDF files are ignored; vendors drop thumbnail and lock
// files next to real scans.
func (w *Watcher) observe(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	if name == "" || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return
	}

	w.mu.Lock()
	if _, busy := w.inFlight[name]; busy {
		w.mu.Unlock()
		return
	}
	w.inFlight[name] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, name)
			w.mu.Unlock()
		}()

		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-ctx.Done():
			return
		}

		w.handle(ctx, name)
	}()
}

// waitStable blocks until the file's size is unchanged across the configured
// number of checks. It reports false when the file vanished or the context
// ended; the scanner may still be streaming pages when the file first
// appears, so claiming too early would feed a truncated document to the
// decoder.
func (w *Watcher) waitStable(ctx context.Context, path string) bool {
	interval := time.Duration(w.cfg.Watch.StableCheckIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	checks := w.cfg.Watch.StableChecks
	if checks <= 0 {
		checks = 1
	}

	var lastSize int64 = -1
	stable := 0
	for stable < checks {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize {
			stable++
		} else {
			stable = 0
			lastSize = info.Size()
		}
		if stable >= checks {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return true
}

// claim renames the file from in to processing. It reports false when
// another pass already claimed the name.
func (w *Watcher) claim(name string) (bool, error) {
	src := filepath.Join(w.paths.In, name)
	dst := filepath.Join(w.paths.Processing, name)
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrStall, w.paths.Key, "claim",
			fmt.Sprintf("move %s into processing", name), err)
	}
	return true, nil
}
