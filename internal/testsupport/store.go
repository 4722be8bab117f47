package testsupport

import (
	"testing"

	"tagflow/internal/config"
	"tagflow/internal/library"
	"tagflow/internal/queue"
	"tagflow/internal/session"
)

// MustOpenQueue opens the job queue for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustOpenSessions opens the session store for tests and registers cleanup.
func MustOpenSessions(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()
	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustOpenLibrary opens the item library for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Library {
	t.Helper()
	lib, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}
