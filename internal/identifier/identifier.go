// Package identifier parses QR payloads into validated print identifiers.
// It is pure: no I/O, no clock.
package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"scanrouter/internal/services"
)

// Print identifiers have the fixed shape QS_YYYY_NNNNN: a literal QS prefix,
// a four digit year, and a five digit zero-padded sequence.
var (
	tokenPattern = regexp.MustCompile(`^QS_(\d{4})_(\d{5})$`)
	printIDField = regexp.MustCompile(`PRINT_ID=([^,\s]+)`)
	printerField = regexp.MustCompile(`PRINTER=([^,\s]+)`)
)

// PrintIdentifier is a validated print material identifier. Immutable once
// parsed; any string not matching the exact shape never becomes one.
type PrintIdentifier struct {
	year     int
	sequence int
}

// Year returns the four digit year component.
func (id PrintIdentifier) Year() int { return id.year }

// Sequence returns the five digit sequence component.
func (id PrintIdentifier) Sequence() int { return id.sequence }

// String renders the canonical QS_YYYY_NNNNN form.
func (id PrintIdentifier) String() string {
	return fmt.Sprintf("QS_%04d_%05d", id.year, id.sequence)
}

// IsZero reports whether the identifier is the zero value.
func (id PrintIdentifier) IsZero() bool {
	return id.year == 0 && id.sequence == 0
}

// Parse validates a raw token against the identifier shape.
func Parse(token string) (PrintIdentifier, error) {
	trimmed := strings.TrimSpace(token)
	match := tokenPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return PrintIdentifier{}, services.Wrap(services.ErrIdentifier, "", "parse",
			fmt.Sprintf("invalid identifier format: %q", trimmed), nil)
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return PrintIdentifier{}, services.Wrap(services.ErrIdentifier, "", "parse",
			fmt.Sprintf("invalid identifier format: %q", trimmed), err)
	}
	sequence, err := strconv.Atoi(match[2])
	if err != nil {
		return PrintIdentifier{}, services.Wrap(services.ErrIdentifier, "", "parse",
			fmt.Sprintf("invalid identifier format: %q", trimmed), err)
	}
	return PrintIdentifier{year: year, sequence: sequence}, nil
}

// Payload is the structured content of one decoded QR symbol.
type Payload struct {
	ID PrintIdentifier
	// PrinterOverride is the optional PRINTER= token; when present it takes
	// precedence over the site's configured printer.
	PrinterOverride string
}

// ExtractPayload pulls the PRINT_ID token (and the optional PRINTER token)
// out of a decoded QR payload and validates the identifier.
func ExtractPayload(raw string) (Payload, error) {
	match := printIDField.FindStringSubmatch(raw)
	if match == nil {
		return Payload{}, services.Wrap(services.ErrIdentifier, "", "extract",
			"invalid identifier format: no PRINT_ID token in payload", nil)
	}

	id, err := Parse(match[1])
	if err != nil {
		return Payload{}, err
	}

	payload := Payload{ID: id}
	if printerMatch := printerField.FindStringSubmatch(raw); printerMatch != nil {
		payload.PrinterOverride = strings.TrimSpace(printerMatch[1])
	}
	return payload, nil
}
