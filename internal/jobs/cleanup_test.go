package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/convertify/convertify/internal/config"
	"github.com/convertify/convertify/internal/staging"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newCleanupStager(t *testing.T) (*staging.Stager, string) {
	t.Helper()
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	s, err := staging.New(uploadDir, filepath.Join(root, "converted"))
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	return s, uploadDir
}

// ---------------------------------------------------------------------------
// NewCleanupJob — construction and interval defaulting
// ---------------------------------------------------------------------------

func TestNewCleanupJob_Defaults(t *testing.T) {
	s, _ := newCleanupStager(t)
	j := NewCleanupJob(s, &config.JobsConfig{})

	if j.interval != time.Hour {
		t.Errorf("interval = %v, want 1h default", j.interval)
	}
	if j.maxAge != 24*time.Hour {
		t.Errorf("maxAge = %v, want 24h default", j.maxAge)
	}
}

func TestNewCleanupJob_ConfiguredValues(t *testing.T) {
	s, _ := newCleanupStager(t)
	j := NewCleanupJob(s, &config.JobsConfig{
		CleanupIntervalHours: 6,
		CleanupMaxAgeHours:   72,
	})

	if j.interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", j.interval)
	}
	if j.maxAge != 72*time.Hour {
		t.Errorf("maxAge = %v, want 72h", j.maxAge)
	}
}

// ---------------------------------------------------------------------------
// runSweep
// ---------------------------------------------------------------------------

func TestCleanupJob_RunSweep(t *testing.T) {
	s, uploadDir := newCleanupStager(t)
	j := NewCleanupJob(s, &config.JobsConfig{CleanupMaxAgeHours: 24})

	stale := filepath.Join(uploadDir, "stale.pdf")
	if err := os.WriteFile(stale, []byte("x"), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	fresh := filepath.Join(uploadDir, "fresh.pdf")
	if err := os.WriteFile(fresh, []byte("x"), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	j.runSweep()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed by the sweep: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Start/Stop lifecycle
// ---------------------------------------------------------------------------

func TestCleanupJob_StopExitsLoop(t *testing.T) {
	s, _ := newCleanupStager(t)
	j := NewCleanupJob(s, &config.JobsConfig{CleanupIntervalHours: 1})

	done := make(chan struct{})
	go func() {
		j.Start(t.Context())
		close(done)
	}()

	j.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not exit after Stop")
	}
}
