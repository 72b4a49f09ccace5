package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanrouter/internal/auditlog"
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

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.MaterialsRoot, 0o755); err != nil {
		t.Fatalf("mkdir materials: %v", err)
	}

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
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "scanrouter.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() { srv.Close() })

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID == 0 || status.JournalDBPath == "" {
		t.Fatalf("unexpected status: %+v", status)
	}

	job := testsupport.NewJob(t, store, "hq", "scan_0001.pdf")
	job.State = journal.StateDone
	job.PrintID = "QS_2026_00001"
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("journal Update: %v", err)
	}

	history, err := client.History(ipc.HistoryRequest{Limit: 10, Site: "hq"})
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Jobs) != 1 || history.Jobs[0].PrintID != "QS_2026_00001" {
		t.Fatalf("unexpected history: %+v", history.Jobs)
	}

	if _, err := client.History(ipc.HistoryRequest{State: "melting"}); err == nil {
		t.Fatal("expected error for unknown state filter")
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected sent=false without a configured topic")
	}
}
