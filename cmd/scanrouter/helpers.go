package main

import (
	"errors"
	"fmt"
	"os"

	"scanrouter/internal/auditlog"
)

func readAuditRecords(path string) ([]auditlog.Record, error) {
	records, err := auditlog.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return records, nil
}
