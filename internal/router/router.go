// Package router supervises one watcher per configured site. Sites are
// independent: a watcher that fails is restarted after a backoff without
// disturbing the others.
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scanrouter/internal/config"
	"scanrouter/internal/logging"
	"scanrouter/internal/notifications"
	"scanrouter/internal/watcher"
)

// Router owns the per-site watch loops.
type Router struct {
	cfg      *config.Config
	deps     watcher.Deps
	logger   *slog.Logger
	notifier notifications.Service

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	watchers []*watcher.Watcher
}

// New builds a router from the configured sites. Watcher construction
// validates each site up front so a bad config fails before any goroutine
// starts.
func New(cfg *config.Config, deps watcher.Deps) (*Router, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
		deps.Notifier = notifier
	}

	watchers := make([]*watcher.Watcher, 0, len(cfg.Sites))
	for _, key := range cfg.SiteKeys() {
		w, err := watcher.New(cfg, key, deps)
		if err != nil {
			return nil, err
		}
		watchers = append(watchers, w)
	}

	return &Router{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(logger, "router"),
		notifier: notifier,
		watchers: watchers,
	}, nil
}

// Start launches every site watcher.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("router already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(len(r.watchers))
	r.mu.Unlock()

	for _, w := range r.watchers {
		go r.supervise(runCtx, w)
	}

	r.logger.Info("router started",
		logging.Int("sites", len(r.watchers)),
		logging.String(logging.FieldEventType, "router_started"),
	)
	if err := r.notifier.NotifyRouterStarted(ctx, len(r.watchers)); err != nil {
		r.logger.Warn("start notification failed", logging.Error(err))
	}
	return nil
}

// Stop cancels every watcher and waits for in-flight files to settle.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	processed, failed, _ := r.Counts()
	r.logger.Info("router stopped",
		logging.Int64("processed", processed),
		logging.Int64("failed", failed),
		logging.String(logging.FieldEventType, "router_stopped"),
	)
	if err := r.notifier.NotifyRouterStopped(context.Background(), int(processed), int(failed)); err != nil {
		r.logger.Warn("stop notification failed", logging.Error(err))
	}
}

// Running reports whether the router's watchers are active.
func (r *Router) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Counts aggregates terminalized and stalled files across all sites.
func (r *Router) Counts() (processed, failed, stalled int64) {
	for _, w := range r.watchers {
		p, f, s := w.Counts()
		processed += p
		failed += f
		stalled += s
	}
	return processed, failed, stalled
}

// SiteCounts reports per-site totals keyed by site.
func (r *Router) SiteCounts() map[string][3]int64 {
	counts := make(map[string][3]int64, len(r.watchers))
	for _, w := range r.watchers {
		p, f, s := w.Counts()
		counts[w.Site()] = [3]int64{p, f, s}
	}
	return counts
}

// supervise keeps one site's watch loop alive, restarting it after the
// configured backoff when it fails. A watcher failure never touches other
// sites.
func (r *Router) supervise(ctx context.Context, w *watcher.Watcher) {
	defer r.wg.Done()

	backoff := time.Duration(r.cfg.Watch.RestartBackoff) * time.Second
	if backoff <= 0 {
		backoff = time.Second
	}
	logger := r.logger.With(logging.String(logging.FieldSite, w.Site()))

	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error("site watcher exited; restarting after backoff",
			logging.Error(err),
			logging.Duration("backoff", backoff),
			logging.String(logging.FieldEventType, "watcher_restart"),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
