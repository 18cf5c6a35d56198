package helpers

import (
	"testing"

	"github.com/xiaot623/agentdir/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at the end of the test.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
