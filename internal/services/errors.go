package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks startup configuration failures; fatal, the
	// process must not run with them.
	ErrConfiguration = errors.New("configuration error")
	// ErrDecode marks QR decode failures: unreadable documents, zero
	// symbols, or ambiguous multi-symbol pages.
	ErrDecode = errors.New("decode error")
	// ErrIdentifier marks payloads that do not parse into a print identifier.
	ErrIdentifier = errors.New("identifier format error")
	// ErrNotFound marks missing print materials.
	ErrNotFound = errors.New("not found")
	// ErrDispatch marks spooler submission failures.
	ErrDispatch = errors.New("dispatch error")
	// ErrStall marks a failed terminal move; the one condition the pipeline
	// cannot self-heal.
	ErrStall = errors.New("stall")
	// ErrTimeout marks a pipeline stage that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes site and operation context while
// tagging it with the provided marker for later classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, site, operation, message string, err error) error {
	detail := buildDetail(site, operation, message)
	if marker == nil {
		marker = errors.New("service failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(site, operation, message string) string {
	parts := make([]string, 0, 3)
	if site = strings.TrimSpace(site); site != "" {
		parts = append(parts, site)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
