package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/statewire/internal/ir"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord creates a dispatch record with minimal required fields.
func testRecord(instanceID string, seq int64, kind ir.RecordKind, state, next string) ir.DispatchRecord {
	return ir.DispatchRecord{
		InstanceID: instanceID,
		Machine:    "Door",
		Seq:        seq,
		Kind:       kind,
		State:      state,
		NextState:  next,
		Payload:    ir.Payload{},
	}
}
