package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSaveAndRecent(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := Start("backup", base)
	first.Finished = base.Add(3 * time.Second)
	first.Record = "20240301T120000"
	first.Files = 4
	if err := j.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := Start("backup", base.Add(time.Minute))
	second.Skipped = true
	second.Error = "clock regression"
	if err := j.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	runs, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("runs not newest first: %+v", runs)
	}
	if !runs[0].Skipped || runs[0].Error != "clock regression" || !runs[0].Finished.IsZero() {
		t.Fatalf("second run round trip: %+v", runs[0])
	}
	got := runs[1]
	if got.Record != first.Record || got.Files != 4 || got.Duration() != 3*time.Second {
		t.Fatalf("first run round trip: %+v", got)
	}

	limited, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Fatalf("limit ignored: %+v", limited)
	}
}

func TestSaveReplaces(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	run := Start("backup", time.Now())
	if err := j.Save(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.Merges = 2
	run.Finished = run.Started.Add(time.Second)
	if err := j.Save(ctx, run); err != nil {
		t.Fatalf("resave: %v", err)
	}
	runs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Merges != 2 {
		t.Fatalf("expected one updated run, got %+v", runs)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Save(context.Background(), Start("verify", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	runs, err := j.Recent(context.Background(), 0)
	if err != nil || len(runs) != 1 || runs[0].Command != "verify" {
		t.Fatalf("after reopen: %v %+v", err, runs)
	}
}

func TestSaveRejectsMissingID(t *testing.T) {
	j := openTest(t)
	if err := j.Save(context.Background(), Run{Command: "backup"}); err == nil {
		t.Fatalf("expected error for run without id")
	}
}
