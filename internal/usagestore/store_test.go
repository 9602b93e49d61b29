package usagestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAccessUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordAccess(ctx, "lodash@4.17.21", 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAccess(ctx, "lodash@4.17.21", 1200); err != nil {
		t.Fatal(err)
	}

	m, ok, err := s.Metrics(ctx, "lodash@4.17.21")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected metrics after access")
	}
	if m.AccessCount != 2 {
		t.Fatalf("AccessCount = %d; want 2", m.AccessCount)
	}
	if m.LastAccess.IsZero() {
		t.Fatal("LastAccess should be set")
	}
	if m.LastScriptExecution != nil {
		t.Fatal("LastScriptExecution should be nil before any script event")
	}
}

func TestScriptExecutionAndBuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordAccess(ctx, "react@18.2.0", 500); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordScriptExecution(ctx, "react@18.2.0"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordBuild(ctx, "react@18.2.0"); err != nil {
		t.Fatal(err)
	}

	m, ok, err := s.Metrics(ctx, "react@18.2.0")
	if err != nil || !ok {
		t.Fatalf("Metrics: ok=%v err=%v", ok, err)
	}
	if m.ScriptExecutionCount != 1 {
		t.Fatalf("ScriptExecutionCount = %d; want 1", m.ScriptExecutionCount)
	}
	if m.LastScriptExecution == nil || m.LastSuccessfulBuild == nil {
		t.Fatal("script and build timestamps should be set")
	}
}

func TestMetricsMissingKey(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Metrics(context.Background(), "missing@0.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("missing key should report ok=false")
	}
}

func TestStalePackages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordAccess(ctx, "fresh@1.0.0", 10); err != nil {
		t.Fatal(err)
	}
	// Backdate one row directly.
	old := time.Now().UTC().AddDate(0, 0, -120).Format(time.RFC3339Nano)
	if _, err := s.db.Exec(
		"INSERT INTO package_metrics (package_key, last_access_time, access_count) VALUES (?, ?, 1)",
		"stale@1.0.0", old); err != nil {
		t.Fatal(err)
	}

	stale, err := s.StalePackages(ctx, 90)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0] != "stale@1.0.0" {
		t.Fatalf("StalePackages = %v; want [stale@1.0.0]", stale)
	}
}

func TestTopPackages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordAccess(ctx, "hot@1.0.0", 10); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordAccess(ctx, "cold@1.0.0", 10); err != nil {
		t.Fatal(err)
	}

	top, err := s.TopPackages(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if count, ok := top["hot@1.0.0"]; !ok || count != 3 {
		t.Fatalf("top = %v; want hot@1.0.0 with count 3", top)
	}
}

func TestProjectsAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordAccess(ctx, "lodash@4.17.21", 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProject(ctx, "/home/dev/app", "react", 12, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProject(ctx, "/home/dev/app", "react", 14, time.Now()); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.PackageCount != 1 || stats.ProjectCount != 1 {
		t.Fatalf("stats = %+v; want 1 package, 1 project", stats)
	}
	if stats.TotalBytes != 1000 {
		t.Fatalf("TotalBytes = %d; want 1000", stats.TotalBytes)
	}
}
