// Package printer submits documents to the OS print spooler. Acceptance by
// the spooler is the success signal; there is no feedback channel from the
// printer hardware.
package printer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"scanrouter/internal/services"
)

var requestIDPattern = regexp.MustCompile(`request id is (\S+)`)

// Job describes one spooler submission.
type Job struct {
	MaterialPath string
	Printer      string
	Copies       int
	MaxCopies    int
}

// Dispatcher submits print jobs to a spooler.
type Dispatcher interface {
	Submit(ctx context.Context, job Job) (string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the CUPS dispatcher.
type Option func(*CUPSDispatcher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(d *CUPSDispatcher) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// CUPSDispatcher submits jobs through the lp binary.
type CUPSDispatcher struct {
	binary string
	exec   Executor
}

// New constructs a CUPS dispatcher.
func New(binary string, opts ...Option) (*CUPSDispatcher, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("lp binary required")
	}
	dispatcher := &CUPSDispatcher{
		binary: binary,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	return dispatcher, nil
}

// Submit hands the material to the spooler and returns the spooler's job id.
// Submission is fire-and-forget relative to physical completion.
func (d *CUPSDispatcher) Submit(ctx context.Context, job Job) (string, error) {
	if strings.TrimSpace(job.Printer) == "" {
		return "", services.Wrap(services.ErrDispatch, "", "submit",
			"print submission failed: no printer name", nil)
	}
	if job.MaxCopies <= 0 {
		return "", services.Wrap(services.ErrDispatch, "", "submit",
			"print submission failed: max copies not configured", nil)
	}
	if job.Copies < 1 || job.Copies > job.MaxCopies {
		return "", services.Wrap(services.ErrDispatch, "", "submit",
			fmt.Sprintf("print submission failed: copies %d outside [1, %d]", job.Copies, job.MaxCopies), nil)
	}

	args := []string{
		"-d", job.Printer,
		"-n", strconv.Itoa(job.Copies),
		"--", job.MaterialPath,
	}
	output, err := d.exec.Run(ctx, d.binary, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "", "submit",
				"print submission timed out", err)
		}
		return "", services.Wrap(services.ErrDispatch, "", "submit",
			fmt.Sprintf("print submission failed: %s", submissionDetail(output, err)), err)
	}

	if match := requestIDPattern.FindStringSubmatch(output); match != nil {
		return match[1], nil
	}
	// Some lp builds print nothing on success; the submission still counts.
	return "", nil
}

func submissionDetail(output string, err error) string {
	if detail := strings.TrimSpace(output); detail != "" {
		return detail
	}
	return err.Error()
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return string(output), ctxErr
		}
		return string(output), fmt.Errorf("%s: %w", binary, err)
	}
	return string(output), nil
}
