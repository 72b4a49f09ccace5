// Package daemon coordinates the routing services and enforces
// single-instance execution via a lock file. Two daemons watching the same
// folders would race each other's claims, so a second instance fails fast
// instead of waiting for the lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scanrouter/internal/config"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/notifications"
	"scanrouter/internal/router"
)

// Daemon owns the router plus the shared stores behind it.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *journal.Store
	router   *router.Router
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// SiteStatus is one site's routing totals.
type SiteStatus struct {
	Site      string
	Processed int64
	Failed    int64
	Stalled   int64
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	LockFilePath  string
	JournalDBPath string
	AuditLogPath  string
	Processed     int64
	Failed        int64
	Stalled       int64
	JobStats      map[string]int
	Sites         []SiteStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *journal.Store, logger *slog.Logger, rtr *router.Router, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || rtr == nil {
		return nil, errors.New("daemon requires config, journal store, logger, and router")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "scanrouterd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		router:   rtr,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "scanrouter.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the router.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scanrouter daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.router.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start router: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("scanrouter daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops the router and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.router.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scanrouter daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime and journal statistics.
func (d *Daemon) Status(ctx context.Context) Status {
	processed, failed, stalled := d.router.Counts()
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockFilePath:  d.lockPath,
		JournalDBPath: d.store.Path(),
		AuditLogPath:  d.cfg.AuditLogPath(),
		Processed:     processed,
		Failed:        failed,
		Stalled:       stalled,
	}

	if summary, err := d.store.Summarize(ctx); err == nil {
		status.JobStats = map[string]int{
			"total":   summary.Total,
			"active":  summary.Active,
			"done":    summary.Done,
			"error":   summary.Error,
			"stalled": summary.Stalled,
		}
	} else {
		d.logger.Warn("journal summary failed", logging.Error(err))
	}

	for _, key := range d.cfg.SiteKeys() {
		counts := d.router.SiteCounts()[key]
		status.Sites = append(status.Sites, SiteStatus{
			Site:      key,
			Processed: counts[0],
			Failed:    counts[1],
			Stalled:   counts[2],
		})
	}
	return status
}

// RecentJobs returns journal rows for the history surface.
func (d *Daemon) RecentJobs(ctx context.Context, limit int, site string, state journal.State) ([]*journal.Job, error) {
	if d.store == nil {
		return nil, errors.New("journal store unavailable")
	}
	return d.store.Recent(ctx, limit, site, state)
}

// TestNotification sends a test push through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "no ntfy topic configured", nil
	}
	return true, "test notification sent", nil
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}
