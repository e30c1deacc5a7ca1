package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/germanygsg/taurimedrec/internal/monitoring"
	"github.com/germanygsg/taurimedrec/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func strPtr(s string) *string { return &s }

// newTestDB opens a fresh on-disk store in a temp dir with a clock fixed in
// 2025.
func newTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))
	db, err := NewDB(filepath.Join(t.TempDir(), "patients.db"), WithClock(clock))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func samplePatient(recordNumber, name string) Patient {
	return Patient{
		RecordNumber:     recordNumber,
		Name:             name,
		Age:              42,
		Address:          strPtr("12 Harbour Road"),
		PhoneNumber:      "+62 812 0000 0000",
		InitialDiagnosis: strPtr("Hypertension"),
	}
}
