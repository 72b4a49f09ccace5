package services

import "context"

type contextKey string

const (
	siteKey      contextKey = "site"
	scanFileKey  contextKey = "scan_file"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithSite annotates context with the site key.
func WithSite(ctx context.Context, site string) context.Context {
	if site == "" {
		return ctx
	}
	return context.WithValue(ctx, siteKey, site)
}

// SiteFromContext returns the site key if present.
func SiteFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(siteKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithScanFile annotates context with the scanned file name.
func WithScanFile(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, scanFileKey, name)
}

// ScanFileFromContext returns the scanned file name if present.
func ScanFileFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scanFileKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a per-file correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
