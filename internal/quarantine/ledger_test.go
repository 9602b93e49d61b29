package quarantine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(filepath.Join(t.TempDir(), "quarantine"), nil)
}

func makePackageDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"`+name+`"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "index.js"), []byte("module.exports = {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestMoveAndRollbackRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	target := makePackageDir(t, t.TempDir(), "lodash")

	wantHash, err := hashDir(target)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := l.MoveToQuarantine(target)
	if err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("original path should be gone after quarantine")
	}
	if rec.SHA256 != wantHash {
		t.Fatalf("stored hash %s does not match pre-move hash %s", rec.SHA256, wantHash)
	}
	if len(l.List()) != 1 {
		t.Fatalf("index has %d records; want 1", len(l.List()))
	}

	if err := l.Rollback(rec); err != nil {
		t.Fatal(err)
	}
	gotHash, err := hashDir(target)
	if err != nil {
		t.Fatal(err)
	}
	if gotHash != wantHash {
		t.Fatalf("restored tree hash %s; want %s", gotHash, wantHash)
	}
	if len(l.List()) != 0 {
		t.Fatal("record should be removed from the index after rollback")
	}
}

func TestMoveFastDefersHash(t *testing.T) {
	l := newTestLedger(t)
	target := makePackageDir(t, t.TempDir(), "react")

	rec, err := l.MoveToQuarantineFast(target)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SHA256 != HashDeferred {
		t.Fatalf("hash = %q; want %q", rec.SHA256, HashDeferred)
	}
	if rec.SizeBytes <= 0 {
		t.Fatalf("SizeBytes = %d; want > 0", rec.SizeBytes)
	}
}

func TestRollbackFailsWhenTargetReappeared(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()
	target := makePackageDir(t, root, "express")

	rec, err := l.MoveToQuarantine(target)
	if err != nil {
		t.Fatal(err)
	}

	// Something recreated the original path in the meantime.
	makePackageDir(t, root, "express")

	if err := l.Rollback(rec); err == nil {
		t.Fatal("rollback onto an existing path should fail")
	}
	if len(l.List()) != 1 {
		t.Fatal("failed rollback must leave the record in the index")
	}
	if _, statErr := os.Stat(rec.QuarantinePath); statErr != nil {
		t.Fatal("failed rollback must leave the quarantine copy in place")
	}
}

func TestCleanupRetention(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()

	old, err := l.MoveToQuarantine(makePackageDir(t, root, "stale"))
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := l.MoveToQuarantine(makePackageDir(t, root, "fresh"))
	if err != nil {
		t.Fatal(err)
	}
	backdate(t, l, old.ID, 45*24*time.Hour)

	if err := l.SaveConfig(Config{RetentionDays: 30}); err != nil {
		t.Fatal(err)
	}
	result, err := l.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if result.EntriesRemoved != 1 {
		t.Fatalf("EntriesRemoved = %d; want 1", result.EntriesRemoved)
	}
	if result.BytesFreed != old.SizeBytes {
		t.Fatalf("BytesFreed = %d; want %d", result.BytesFreed, old.SizeBytes)
	}
	if _, statErr := os.Stat(old.QuarantinePath); !os.IsNotExist(statErr) {
		t.Fatal("expired entry should be deleted from disk")
	}
	if _, err := l.FindByID(fresh.ID); err != nil {
		t.Fatal("entry inside the retention window must survive cleanup")
	}
}

func TestCleanupSizeQuotaOldestFirst(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()

	var recs []Record
	for _, name := range []string{"first", "second", "third"} {
		dir := makePackageDir(t, root, name)
		if err := os.WriteFile(filepath.Join(dir, "bundle.js"), make([]byte, 512*1024), 0o644); err != nil {
			t.Fatal(err)
		}
		rec, err := l.MoveToQuarantine(dir)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
		time.Sleep(2 * time.Millisecond) // distinct nanosecond ids and ordering
	}

	// Inflate recorded sizes so two entries exceed a 1 GB quota.
	records := l.readIndex()
	for i := range records {
		records[i].SizeBytes = 600 * 1024 * 1024
	}
	if err := l.writeIndex(records); err != nil {
		t.Fatal(err)
	}

	if err := l.SaveConfig(Config{MaxSizeGB: 1}); err != nil {
		t.Fatal(err)
	}
	result, err := l.Cleanup()
	if err != nil {
		t.Fatal(err)
	}

	// 1800 MB total, 1024 MB budget: dropping the two oldest gets under.
	if result.EntriesRemoved != 2 {
		t.Fatalf("EntriesRemoved = %d; want 2", result.EntriesRemoved)
	}
	if want := int64(2 * 600 * 1024 * 1024); result.BytesFreed != want {
		t.Fatalf("BytesFreed = %d; want %d", result.BytesFreed, want)
	}
	if _, err := l.FindByID(recs[0].ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatal("oldest entry should be purged first")
	}
	if _, err := l.FindByID(recs[2].ID); err != nil {
		t.Fatal("newest entry should survive")
	}
}

func TestCleanupMaxEntries(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()

	for _, name := range []string{"a", "b", "c", "d"} {
		if _, err := l.MoveToQuarantine(makePackageDir(t, root, name)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := l.SaveConfig(Config{MaxEntries: 2}); err != nil {
		t.Fatal(err)
	}
	result, err := l.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if result.EntriesRemoved != 2 {
		t.Fatalf("EntriesRemoved = %d; want 2", result.EntriesRemoved)
	}
	if got := len(l.List()); got != 2 {
		t.Fatalf("index has %d records; want 2", got)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.FindByID("1234")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("err = %v; want ErrRecordNotFound", err)
	}
	_, err = l.Latest()
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Latest on empty index: err = %v; want ErrRecordNotFound", err)
	}
}

func TestLatestPicksNewest(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()

	if _, err := l.MoveToQuarantine(makePackageDir(t, root, "older")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	newer, err := l.MoveToQuarantine(makePackageDir(t, root, "newer"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != newer.ID {
		t.Fatalf("Latest = %s; want %s", got.ID, newer.ID)
	}
}

func TestStats(t *testing.T) {
	l := newTestLedger(t)
	root := t.TempDir()

	rec, err := l.MoveToQuarantine(makePackageDir(t, root, "pkg"))
	if err != nil {
		t.Fatal(err)
	}
	backdate(t, l, rec.ID, 40*24*time.Hour)

	stats := l.Stats()
	if stats.TotalEntries != 1 {
		t.Fatalf("TotalEntries = %d; want 1", stats.TotalEntries)
	}
	if stats.TotalSizeBytes != rec.SizeBytes {
		t.Fatalf("TotalSizeBytes = %d; want %d", stats.TotalSizeBytes, rec.SizeBytes)
	}
	if stats.OldestEntryDays < 40 {
		t.Fatalf("OldestEntryDays = %d; want >= 40", stats.OldestEntryDays)
	}
	if stats.EntriesOverRetention != 1 {
		t.Fatalf("EntriesOverRetention = %d; want 1 with default 30 day retention", stats.EntriesOverRetention)
	}
	if stats.DiskFreeBytes <= 0 {
		t.Fatalf("DiskFreeBytes = %d; want > 0", stats.DiskFreeBytes)
	}
}

func TestCorruptIndexTreatedAsEmpty(t *testing.T) {
	l := newTestLedger(t)
	if err := os.MkdirAll(l.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.indexPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := len(l.List()); got != 0 {
		t.Fatalf("corrupt index produced %d records; want 0", got)
	}
}

func TestHashDirLocationIndependent(t *testing.T) {
	root := t.TempDir()
	a := makePackageDir(t, root, "a")
	b := makePackageDir(t, filepath.Join(root, "elsewhere"), "b")

	// Same contents, different absolute locations.
	hashA, err := hashDir(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(b); err != nil {
		t.Fatal(err)
	}
	b = makePackageDir(t, filepath.Join(root, "elsewhere"), "a")
	hashB, err := hashDir(b)
	if err != nil {
		t.Fatal(err)
	}
	if hashA != hashB {
		t.Fatal("identical trees at different locations should hash identically")
	}
}

// backdate rewrites a record's creation time so retention tests do not need
// a real clock.
func backdate(t *testing.T, l *Ledger, id string, age time.Duration) {
	t.Helper()
	records := l.readIndex()
	for i := range records {
		if records[i].ID == id {
			records[i].CreatedAt = records[i].CreatedAt.Add(-age)
		}
	}
	if err := l.writeIndex(records); err != nil {
		t.Fatal(err)
	}
}
