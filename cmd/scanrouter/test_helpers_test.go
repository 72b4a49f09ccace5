package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scanrouter/internal/auditlog"
	"scanrouter/internal/config"
	"scanrouter/internal/daemon"
	"scanrouter/internal/ipc"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/materials"
	"scanrouter/internal/printer"
	"scanrouter/internal/router"
	"scanrouter/internal/testsupport"
	"scanrouter/internal/watcher"
)

type noopDecoder struct{}

func (noopDecoder) Decode(ctx context.Context, path string) ([]string, error) {
	return []string{"PRINT_ID=QS_2026_00001"}, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Submit(ctx context.Context, job printer.Job) (string, error) {
	return "JOB-1", nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *journal.Store
	audit      *auditlog.Log
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.MaterialsRoot, 0o755); err != nil {
		t.Fatalf("mkdir materials: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "scanrouter.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenJournal(t, cfg)
	audit, err := auditlog.Open(cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Open: %v", err)
	}
	t.Cleanup(func() { audit.Close() })

	resolver, err := materials.NewResolver(cfg.Paths.MaterialsRoot)
	if err != nil {
		t.Fatalf("materials.NewResolver: %v", err)
	}

	logger := logging.NewNop()
	rtr, err := router.New(cfg, watcher.Deps{
		Journal:    store,
		Audit:      audit,
		Decoder:    noopDecoder{},
		Resolver:   resolver,
		Dispatcher: noopDispatcher{},
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	d, err := daemon.New(cfg, store, logger, rtr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		audit:      audit,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var sb strings.Builder
	fmt.Fprintf(&sb, "[paths]\nscan_root = %q\nmaterials_root = %q\nlog_dir = %q\naudit_log = %q\n\n",
		cfg.Paths.ScanRoot,
		cfg.Paths.MaterialsRoot,
		cfg.Paths.LogDir,
		cfg.Paths.AuditLog,
	)
	for key, site := range cfg.Sites {
		fmt.Fprintf(&sb, "[sites.%s]\nprinter_name = %q\nmax_copies = %d\ncopies = %d\n\n",
			key, site.PrinterName, site.MaxCopies, site.Copies)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
