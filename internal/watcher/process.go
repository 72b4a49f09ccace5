package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"scanrouter/internal/auditlog"
	"scanrouter/internal/identifier"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
	"scanrouter/internal/printer"
	"scanrouter/internal/services"
)

// outcome captures everything the audit record and journal need about one
// file's trip through the pipeline.
type outcome struct {
	printID      string
	printerName  string
	copies       int
	spoolerJobID string
	err          error
}

// handle runs one claimed file through the whole pipeline. Every stage
// failure is converted into an audit record and a terminal move; nothing
// escapes to crash the watch loop.
func (w *Watcher) handle(ctx context.Context, name string) {
	requestID := uuid.NewString()
	ctx = services.WithSite(ctx, w.paths.Key)
	ctx = services.WithScanFile(ctx, name)
	ctx = services.WithRequestID(ctx, requestID)

	logger := w.logger.With(
		logging.String(logging.FieldScanFile, name),
		logging.String(logging.FieldCorrelationID, requestID),
	)

	if !w.waitStable(ctx, filepath.Join(w.paths.In, name)) {
		return
	}

	claimed, err := w.claim(name)
	if err != nil {
		logger.Error("claim rename failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "claim_failed"),
		)
		return
	}
	if !claimed {
		logger.Debug("file already claimed by another pass",
			logging.String(logging.FieldEventType, "claim_lost"),
		)
		return
	}

	logger.Info("claimed scan file",
		logging.String(logging.FieldStage, string(journal.StateClaimed)),
		logging.String(logging.FieldEventType, "file_claimed"),
	)

	job := w.openJob(ctx, logger, name, requestID)
	result := w.process(ctx, logger, job, name)
	if result.err != nil && errors.Is(result.err, context.Canceled) {
		w.release(logger, job, name)
		return
	}
	// Terminalization runs to completion even when shutdown canceled the
	// run context: the outcome is already decided and must be recorded.
	w.terminalize(context.WithoutCancel(ctx), logger, job, name, result)
}

// release returns a claimed file to the inbox. Shutdown can interrupt the
// pipeline before anything was printed; the file is safe to reprocess from
// the top on the next start.
func (w *Watcher) release(logger *slog.Logger, job *journal.Job, name string) {
	src := filepath.Join(w.paths.Processing, name)
	dst := filepath.Join(w.paths.In, name)
	if err := os.Rename(src, dst); err != nil {
		w.stall(context.Background(), logger, job, name,
			services.Wrap(services.ErrStall, w.paths.Key, "release",
				fmt.Sprintf("return %s to inbox", name), err))
		return
	}
	w.advanceJob(context.Background(), logger, job, journal.StateClaimed)
	logger.Info("shutdown interrupted processing; file returned to inbox",
		logging.String(logging.FieldEventType, "file_released"),
	)
}

// openJob records the claim in the journal. Journal trouble is logged and
// tolerated; the CSV audit log is the canonical record.
func (w *Watcher) openJob(ctx context.Context, logger *slog.Logger, name, requestID string) *journal.Job {
	if w.deps.Journal == nil {
		return nil
	}
	job, err := w.deps.Journal.NewJob(ctx, w.paths.Key, name, requestID)
	if err != nil {
		logger.Warn("journal insert failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "journal_write_failed"),
		)
		return nil
	}
	return job
}

func (w *Watcher) advanceJob(ctx context.Context, logger *slog.Logger, job *journal.Job, state journal.State) {
	if job == nil || w.deps.Journal == nil {
		return
	}
	job.State = state
	if err := w.deps.Journal.Update(ctx, job); err != nil {
		logger.Warn("journal update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "journal_write_failed"),
		)
	}
}

// process decodes, extracts, resolves, and dispatches a claimed file.
func (w *Watcher) process(ctx context.Context, logger *slog.Logger, job *journal.Job, name string) outcome {
	claimedPath := filepath.Join(w.paths.Processing, name)
	result := outcome{}

	w.advanceJob(ctx, logger, job, journal.StateDecoding)
	payloads, err := w.decodeClaimed(ctx, claimedPath)
	if err != nil {
		result.err = err
		return result
	}
	switch len(payloads) {
	case 1:
	case 0:
		result.err = services.Wrap(services.ErrDecode, w.paths.Key, "decode", "QR not found", nil)
		return result
	default:
		result.err = services.Wrap(services.ErrDecode, w.paths.Key, "decode", "multiple QR codes detected", nil)
		return result
	}

	payload, err := identifier.ExtractPayload(payloads[0])
	if err != nil {
		result.err = err
		return result
	}
	result.printID = payload.ID.String()
	if job != nil {
		job.PrintID = result.printID
	}
	logger.Info("identifier extracted",
		logging.String(logging.FieldPrintID, result.printID),
		logging.String(logging.FieldStage, string(journal.StateResolving)),
	)

	w.advanceJob(ctx, logger, job, journal.StateResolving)
	materialPath, err := w.deps.Resolver.Resolve(payload.ID)
	if err != nil {
		result.err = err
		return result
	}

	result.printerName = w.site.PrinterName
	if payload.PrinterOverride != "" {
		result.printerName = payload.PrinterOverride
	}
	result.copies = clampCopies(w.site.Copies, w.site.MaxCopies)
	if job != nil {
		job.Printer = result.printerName
		job.Copies = result.copies
	}

	w.advanceJob(ctx, logger, job, journal.StatePrinting)
	spoolerJobID, err := w.dispatch(ctx, printer.Job{
		MaterialPath: materialPath,
		Printer:      result.printerName,
		Copies:       result.copies,
		MaxCopies:    w.site.MaxCopies,
	})
	if err != nil {
		result.err = err
		return result
	}
	result.spoolerJobID = spoolerJobID
	if job != nil {
		job.SpoolerJobID = spoolerJobID
	}
	return result
}

func (w *Watcher) decodeClaimed(ctx context.Context, path string) ([]string, error) {
	timeout := time.Duration(w.cfg.Watch.DecodeTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	decodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.deps.Decoder.Decode(decodeCtx, path)
}

func (w *Watcher) dispatch(ctx context.Context, job printer.Job) (string, error) {
	timeout := time.Duration(w.cfg.Watch.DispatchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// A submission that has started must run to completion: killing lp
	// mid-run leaves the spooler state unknown, and reprocessing the file
	// after restart could print it twice. Shutdown cancellation only
	// applies to stages before this one; the timeout still bounds it.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return w.deps.Dispatcher.Submit(dispatchCtx, job)
}

// terminalize appends the audit record and moves the file out of
// processing. The append happens before the move so a crash in between
// leaves a record pointing at a file still visible in processing, never a
// terminal file with no record.
func (w *Watcher) terminalize(ctx context.Context, logger *slog.Logger, job *journal.Job, name string, result outcome) {
	record := auditlog.Record{
		Timestamp: time.Now(),
		Site:      w.paths.Key,
		ScanFile:  name,
		PrintID:   result.printID,
		Printer:   result.printerName,
	}

	targetDir := w.paths.Done
	targetState := journal.StateDone
	if result.err != nil {
		record.Result = auditlog.ResultError
		record.ErrorMessage = result.err.Error()
		targetDir = w.paths.Error
		targetState = journal.StateError
		if job != nil {
			job.ErrorMessage = record.ErrorMessage
		}
		logger.Error("pipeline failed",
			logging.Error(result.err),
			logging.String(logging.FieldEventType, "pipeline_failed"),
		)
		if notifyErr := w.deps.Notifier.NotifyProcessingError(ctx, w.paths.Key, name, result.err); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
	} else {
		record.Result = auditlog.ResultSuccess
		logger.Info("print dispatched",
			logging.String(logging.FieldPrintID, result.printID),
			logging.String(logging.FieldPrinter, result.printerName),
			logging.Int("copies", result.copies),
			logging.String("spooler_job_id", result.spoolerJobID),
			logging.String(logging.FieldEventType, "print_dispatched"),
		)
		if notifyErr := w.deps.Notifier.NotifyPrintDispatched(ctx, w.paths.Key, result.printID, result.printerName); notifyErr != nil {
			logger.Warn("dispatch notification failed", logging.Error(notifyErr))
		}
	}

	if err := w.deps.Audit.Append(record); err != nil {
		w.stall(ctx, logger, job, name,
			services.Wrap(services.ErrStall, w.paths.Key, "audit",
				fmt.Sprintf("append audit record for %s", name), err))
		return
	}

	src := filepath.Join(w.paths.Processing, name)
	dst := filepath.Join(targetDir, name)
	if err := os.Rename(src, dst); err != nil {
		w.stall(ctx, logger, job, name,
			services.Wrap(services.ErrStall, w.paths.Key, "terminalize",
				fmt.Sprintf("move %s out of processing", name), err))
		return
	}

	w.advanceJob(ctx, logger, job, targetState)
	if result.err != nil {
		w.failed.Add(1)
	} else {
		w.processed.Add(1)
	}
}

// stall marks a file stuck in processing. The file must not be re-claimed
// automatically; an operator has to resolve it.
func (w *Watcher) stall(ctx context.Context, logger *slog.Logger, job *journal.Job, name string, err error) {
	w.stalled.Add(1)
	if job != nil {
		job.ErrorMessage = err.Error()
	}
	w.advanceJob(ctx, logger, job, journal.StateStalled)
	logger.Error("file stalled in processing; operator intervention required",
		logging.Error(err),
		logging.Alert("stall"),
		logging.String(logging.FieldEventType, "file_stalled"),
	)
	if notifyErr := w.deps.Notifier.NotifyStalledFile(ctx, w.paths.Key, name); notifyErr != nil {
		logger.Warn("stall notification failed", logging.Error(notifyErr))
	}
}

func clampCopies(copies, maxCopies int) int {
	if copies < 1 {
		copies = 1
	}
	if maxCopies > 0 && copies > maxCopies {
		copies = maxCopies
	}
	return copies
}
