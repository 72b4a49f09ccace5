package watcher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scanrouter/internal/auditlog"
	"scanrouter/internal/config"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/materials"
	"scanrouter/internal/printer"
	"scanrouter/internal/testsupport"
	"scanrouter/internal/watcher"
)

type stubDecoder struct {
	mu       sync.Mutex
	payloads []string
	err      error
	calls    int
}

func (d *stubDecoder) Decode(ctx context.Context, path string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]string(nil), d.payloads...), nil
}

type stubDispatcher struct {
	mu   sync.Mutex
	jobs []printer.Job
	err  error
}

func (d *stubDispatcher) Submit(ctx context.Context, job printer.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.jobs = append(d.jobs, job)
	return "TEST-PRINTER-17", nil
}

func (d *stubDispatcher) submissions() []printer.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]printer.Job(nil), d.jobs...)
}

// blockingDispatcher holds every submission open until released so tests
// can cancel the watcher while a job is mid-flight at the spooler.
type blockingDispatcher struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
	calls   int
}

func newBlockingDispatcher() *blockingDispatcher {
	return &blockingDispatcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *blockingDispatcher) Submit(ctx context.Context, job printer.Job) (string, error) {
	d.mu.Lock()
	d.calls++
	if d.calls == 1 {
		close(d.started)
	}
	d.mu.Unlock()
	select {
	case <-d.release:
		return "TEST-PRINTER-23", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *blockingDispatcher) submitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingNotifier struct {
	mu         sync.Mutex
	dispatched int
	errored    int
	stalled    int
}

func (n *recordingNotifier) NotifyRouterStarted(context.Context, int) error      { return nil }
func (n *recordingNotifier) NotifyRouterStopped(context.Context, int, int) error { return nil }

func (n *recordingNotifier) NotifyPrintDispatched(context.Context, string, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatched++
	return nil
}

func (n *recordingNotifier) NotifyProcessingError(context.Context, string, string, error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errored++
	return nil
}

func (n *recordingNotifier) NotifyStalledFile(context.Context, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stalled++
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) counts() (dispatched, errored, stalled int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dispatched, n.errored, n.stalled
}

type harness struct {
	cfg        *config.Config
	store      *journal.Store
	audit      *auditlog.Log
	decoder    *stubDecoder
	dispatcher *stubDispatcher
	notifier   *recordingNotifier
	watcher    *watcher.Watcher
	paths      config.SitePaths
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Watch.PollInterval = 1
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

	decoder := &stubDecoder{payloads: []string{"PRINT_ID=QS_2026_00042"}}
	dispatcher := &stubDispatcher{}
	notifier := &recordingNotifier{}

	w, err := watcher.New(cfg, "hq", watcher.Deps{
		Journal:    store,
		Audit:      audit,
		Decoder:    decoder,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}

	return &harness{
		cfg:        cfg,
		store:      store,
		audit:      audit,
		decoder:    decoder,
		dispatcher: dispatcher,
		notifier:   notifier,
		watcher:    w,
		paths:      cfg.SitePaths("hq"),
	}
}

func (h *harness) addMaterial(t *testing.T, id string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.MaterialsRoot, id+".pdf"), 64)
}

func (h *harness) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := h.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("watcher.Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSuccessfulRoute(t *testing.T) {
	h := newHarness(t)
	h.addMaterial(t, "QS_2026_00042")
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "scan_0001.pdf"), 256)

	donePath := filepath.Join(h.paths.Done, "scan_0001.pdf")
	waitFor(t, "file in done", func() bool { return fileExists(donePath) })

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Result != auditlog.ResultSuccess || rec.PrintID != "QS_2026_00042" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Printer != "TEST-PRINTER" || rec.Site != "hq" || rec.ScanFile != "scan_0001.pdf" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	jobs := h.dispatcher.submissions()
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].Printer != "TEST-PRINTER" || jobs[0].Copies != 1 {
		t.Fatalf("unexpected spool job: %+v", jobs[0])
	}

	journalJobs, err := h.store.Recent(context.Background(), 0, "hq", journal.StateDone)
	if err != nil {
		t.Fatalf("journal.Recent: %v", err)
	}
	if len(journalJobs) != 1 || journalJobs[0].PrintID != "QS_2026_00042" {
		t.Fatalf("unexpected journal rows: %+v", journalJobs)
	}
	if journalJobs[0].SpoolerJobID != "TEST-PRINTER-17" {
		t.Fatalf("unexpected spooler job id: %q", journalJobs[0].SpoolerJobID)
	}

	dispatched, errored, stalled := h.notifier.counts()
	if errored != 0 || stalled != 0 {
		t.Fatalf("unexpected notifications: dispatched=%d errored=%d stalled=%d", dispatched, errored, stalled)
	}
}

func TestPrinterOverride(t *testing.T) {
	h := newHarness(t)
	h.decoder.payloads = []string{"PRINT_ID=QS_2026_00007,PRINTER=LOBBY-PRINTER"}
	h.addMaterial(t, "QS_2026_00007")
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "scan_0002.pdf"), 256)
	waitFor(t, "file in done", func() bool {
		return fileExists(filepath.Join(h.paths.Done, "scan_0002.pdf"))
	})

	jobs := h.dispatcher.submissions()
	if len(jobs) != 1 || jobs[0].Printer != "LOBBY-PRINTER" {
		t.Fatalf("expected override printer, got %+v", jobs)
	}
}

func TestMissingQRLandsInError(t *testing.T) {
	h := newHarness(t)
	h.decoder.payloads = nil
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "blank.pdf"), 256)
	errorPath := filepath.Join(h.paths.Error, "blank.pdf")
	waitFor(t, "file in error", func() bool { return fileExists(errorPath) })

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 || records[0].Result != auditlog.ResultError {
		t.Fatalf("unexpected records: %+v", records)
	}
	if !contains(records[0].ErrorMessage, "QR not found") {
		t.Fatalf("error message %q missing decode detail", records[0].ErrorMessage)
	}
	if len(h.dispatcher.submissions()) != 0 {
		t.Fatal("expected no spooler submissions")
	}
	_, errored, _ := h.notifier.counts()
	if errored != 1 {
		t.Fatalf("errored notifications = %d, want 1", errored)
	}
}

func TestAmbiguousQRRejected(t *testing.T) {
	h := newHarness(t)
	h.decoder.payloads = []string{"PRINT_ID=QS_2026_00001", "PRINT_ID=QS_2026_00002"}
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "double.pdf"), 256)
	waitFor(t, "file in error", func() bool {
		return fileExists(filepath.Join(h.paths.Error, "double.pdf"))
	})

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 || !contains(records[0].ErrorMessage, "multiple QR codes detected") {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestMissingMaterialLandsInError(t *testing.T) {
	h := newHarness(t)
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "orphan.pdf"), 256)
	waitFor(t, "file in error", func() bool {
		return fileExists(filepath.Join(h.paths.Error, "orphan.pdf"))
	})

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 || !contains(records[0].ErrorMessage, "print material not found: QS_2026_00042") {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].PrintID != "QS_2026_00042" {
		t.Fatalf("expected print id recorded even on failure, got %+v", records[0])
	}
}

func TestNonPDFIgnored(t *testing.T) {
	h := newHarness(t)
	h.run(t)

	notePath := filepath.Join(h.paths.In, "readme.txt")
	testsupport.WriteFile(t, notePath, 32)

	// Give the watcher time to run at least one poll sweep.
	time.Sleep(1500 * time.Millisecond)

	if !fileExists(notePath) {
		t.Fatal("expected non-PDF file to stay in the in folder")
	}
	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("unexpected records for ignored file: %+v", records)
	}
}

func TestClaimExclusivityAcrossWatchers(t *testing.T) {
	h := newHarness(t)

	second, err := watcher.New(h.cfg, "hq", watcher.Deps{
		Journal:    h.store,
		Audit:      h.audit,
		Decoder:    h.decoder,
		Resolver:   mustResolver(t, h.cfg.Paths.MaterialsRoot),
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}

	h.addMaterial(t, "QS_2026_00042")
	h.run(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = second.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "contested.pdf"), 256)
	waitFor(t, "file in done", func() bool {
		return fileExists(filepath.Join(h.paths.Done, "contested.pdf"))
	})

	// Let the losing claimant finish its pass before counting.
	time.Sleep(200 * time.Millisecond)

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want exactly one claimant to proceed", len(records))
	}
	if len(h.dispatcher.submissions()) != 1 {
		t.Fatalf("submissions = %d, want 1", len(h.dispatcher.submissions()))
	}
}

func TestFailedTerminalMoveStalls(t *testing.T) {
	h := newHarness(t)
	h.addMaterial(t, "QS_2026_00042")
	if err := os.RemoveAll(h.paths.Done); err != nil {
		t.Fatalf("remove done dir: %v", err)
	}
	h.run(t)

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "stuck.pdf"), 256)

	processingPath := filepath.Join(h.paths.Processing, "stuck.pdf")
	waitFor(t, "stall notification", func() bool {
		_, _, stalled := h.notifier.counts()
		return stalled == 1
	})

	if !fileExists(processingPath) {
		t.Fatal("expected stalled file to stay in processing")
	}
	jobs, err := h.store.Recent(context.Background(), 0, "hq", journal.StateStalled)
	if err != nil {
		t.Fatalf("journal.Recent: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("stalled journal rows = %d, want 1", len(jobs))
	}
}

// blockingDecoder parks the pipeline in the decode stage until the run
// context is canceled.
type blockingDecoder struct {
	once    sync.Once
	started chan struct{}
}

func (d *blockingDecoder) Decode(ctx context.Context, path string) ([]string, error) {
	d.once.Do(func() { close(d.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestShutdownBeforeDispatchReleasesFile(t *testing.T) {
	h := newHarness(t)
	h.addMaterial(t, "QS_2026_00042")

	decoder := &blockingDecoder{started: make(chan struct{})}
	w, err := watcher.New(h.cfg, "hq", watcher.Deps{
		Journal:    h.store,
		Audit:      h.audit,
		Decoder:    decoder,
		Resolver:   mustResolver(t, h.cfg.Paths.MaterialsRoot),
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "pending.pdf"), 256)
	<-decoder.started
	cancel()
	<-done

	if !fileExists(filepath.Join(h.paths.In, "pending.pdf")) {
		t.Fatal("expected file back in the inbox after shutdown before dispatch")
	}
	if fileExists(filepath.Join(h.paths.Processing, "pending.pdf")) {
		t.Fatal("file must not linger in processing")
	}
	if got := len(h.dispatcher.submissions()); got != 0 {
		t.Fatalf("submissions = %d, want 0", got)
	}

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no audit records for a released file, got %+v", records)
	}

	jobs, err := h.store.Recent(context.Background(), 0, "hq", journal.StateClaimed)
	if err != nil {
		t.Fatalf("journal.Recent: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("claimed journal rows = %d, want 1", len(jobs))
	}
}

func TestShutdownDuringDispatchFinishesJob(t *testing.T) {
	h := newHarness(t)
	h.addMaterial(t, "QS_2026_00042")

	dispatcher := newBlockingDispatcher()
	w, err := watcher.New(h.cfg, "hq", watcher.Deps{
		Journal:    h.store,
		Audit:      h.audit,
		Decoder:    h.decoder,
		Resolver:   mustResolver(t, h.cfg.Paths.MaterialsRoot),
		Dispatcher: dispatcher,
		Notifier:   h.notifier,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	testsupport.WriteFile(t, filepath.Join(h.paths.In, "midflight.pdf"), 256)
	<-dispatcher.started

	// Shutdown arrives while the spooler submission is running. The
	// submission must be allowed to finish and the file must terminalize
	// as a normal success, not return to the inbox for a second print.
	cancel()
	time.Sleep(100 * time.Millisecond)
	close(dispatcher.release)
	<-done

	donePath := filepath.Join(h.paths.Done, "midflight.pdf")
	if !fileExists(donePath) {
		t.Fatal("expected file in done after shutdown mid-dispatch")
	}
	if fileExists(filepath.Join(h.paths.In, "midflight.pdf")) {
		t.Fatal("file must not be returned to the inbox once dispatch started")
	}
	if got := dispatcher.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want exactly 1", got)
	}

	records, err := auditlog.Read(h.cfg.AuditLogPath())
	if err != nil {
		t.Fatalf("auditlog.Read: %v", err)
	}
	if len(records) != 1 || records[0].Result != auditlog.ResultSuccess {
		t.Fatalf("unexpected audit records: %+v", records)
	}

	jobs, err := h.store.Recent(context.Background(), 0, "hq", journal.StateDone)
	if err != nil {
		t.Fatalf("journal.Recent: %v", err)
	}
	if len(jobs) != 1 || jobs[0].SpoolerJobID != "TEST-PRINTER-23" {
		t.Fatalf("unexpected done journal rows: %+v", jobs)
	}
}

func mustResolver(t *testing.T, root string) *materials.Resolver {
	t.Helper()
	resolver, err := materials.NewResolver(root)
	if err != nil {
		t.Fatalf("materials.NewResolver: %v", err)
	}
	return resolver
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
