package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scanrouter/internal/config"
)

const userAgent = "Scanrouter/0.1.0"

// Service defines the notification surface exposed to routing components.
type Service interface {
	NotifyRouterStarted(ctx context.Context, sites int) error
	NotifyRouterStopped(ctx context.Context, processed, failed int) error
	NotifyPrintDispatched(ctx context.Context, site, printID, printer string) error
	NotifyProcessingError(ctx context.Context, site, scanFile string, err error) error
	NotifyStalledFile(ctx context.Context, site, scanFile string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:  topic,
		client:    client,
		stalls:    cfg.Notifications.Stalls,
		errors:    cfg.Notifications.Errors,
		lifecycle: cfg.Notifications.Lifecycle,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	stalls    bool
	errors    bool
	lifecycle bool
}

func (n *ntfyService) NotifyRouterStarted(ctx context.Context, sites int) error {
	if !n.lifecycle {
		return nil
	}
	data := payload{
		title:   "Scanrouter - Started",
		message: fmt.Sprintf("Watching %d site(s) for scanned documents", sites),
		tags:    []string{"scanrouter", "lifecycle", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRouterStopped(ctx context.Context, processed, failed int) error {
	if !n.lifecycle {
		return nil
	}
	var message string
	if failed == 0 {
		message = fmt.Sprintf("Stopped after routing %d file(s)", processed)
	} else {
		message = fmt.Sprintf("Stopped after routing %d file(s), %d failed", processed, failed)
	}
	data := payload{
		title:   "Scanrouter - Stopped",
		message: message,
		tags:    []string{"scanrouter", "lifecycle", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPrintDispatched(ctx context.Context, site, printID, printer string) error {
	if !n.lifecycle {
		return nil
	}
	data := payload{
		title:   "Scanrouter - Print Dispatched",
		message: fmt.Sprintf("%s routed to %s (%s)", strings.TrimSpace(printID), strings.TrimSpace(printer), site),
		tags:    []string{"scanrouter", "print", "dispatched"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProcessingError(ctx context.Context, site, scanFile string, err error) error {
	if !n.errors {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Scanrouter - Error",
		message:  fmt.Sprintf("%s/%s failed: %s", site, strings.TrimSpace(scanFile), detail),
		tags:     []string{"scanrouter", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStalledFile(ctx context.Context, site, scanFile string) error {
	if !n.stalls {
		return nil
	}
	data := payload{
		title:    "Scanrouter - Stalled File",
		message:  fmt.Sprintf("%s/%s is stuck in the processing folder\nManual intervention required", site, strings.TrimSpace(scanFile)),
		tags:     []string{"scanrouter", "stall", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scanrouter - Test",
		message:  "Notification system test",
		tags:     []string{"scanrouter", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRouterStarted(context.Context, int) error                      { return nil }
func (noopService) NotifyRouterStopped(context.Context, int, int) error                 { return nil }
func (noopService) NotifyPrintDispatched(context.Context, string, string, string) error { return nil }
func (noopService) NotifyProcessingError(context.Context, string, string, error) error  { return nil }
func (noopService) NotifyStalledFile(context.Context, string, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
