package testsupport

import (
	"context"
	"testing"

	"scanrouter/internal/config"
	"scanrouter/internal/journal"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob records a claimed scan file for tests using the provided store.
func NewJob(t testing.TB, store *journal.Store, site, scanFile string) *journal.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), site, scanFile, "test-request")
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
