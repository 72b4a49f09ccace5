package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"scanrouter/internal/auditlog"
	"scanrouter/internal/daemon"
	"scanrouter/internal/ipc"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/materials"
	"scanrouter/internal/notifications"
	"scanrouter/internal/printer"
	"scanrouter/internal/qrdecode"
	"scanrouter/internal/router"
	"scanrouter/internal/watcher"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the routing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "scanrouter.log")
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "scanrouter.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open job journal", logging.Error(err))
		return err
	}
	defer store.Close()

	audit, err := auditlog.Open(cfg.AuditLogPath())
	if err != nil {
		logger.Error("open audit log", logging.Error(err))
		return err
	}
	defer audit.Close()

	decoder, err := qrdecode.New(cfg.Tools.Pdftoppm, cfg.Tools.RasterDPI)
	if err != nil {
		return fmt.Errorf("init decoder: %w", err)
	}
	resolver, err := materials.NewResolver(cfg.Paths.MaterialsRoot)
	if err != nil {
		return fmt.Errorf("init material resolver: %w", err)
	}
	dispatcher, err := printer.New(cfg.Tools.Lp)
	if err != nil {
		return fmt.Errorf("init print dispatcher: %w", err)
	}
	notifier := notifications.NewService(cfg)

	rtr, err := router.New(cfg, watcher.Deps{
		Journal:    store,
		Audit:      audit,
		Decoder:    decoder,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, rtr, notifier)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := buildSocketPath(cfg)
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("scanrouter daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
