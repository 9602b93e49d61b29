package planner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkgsweep/internal/dedup"
	"pkgsweep/internal/predictor"
	"pkgsweep/internal/scanner"
)

func testOptions() Options {
	return Options{
		PreserveDays: 90,
		MaxPackages:  100,
		MaxSizeBytes: 10 << 30,
	}
}

func scanFixture(now time.Time) *scanner.Output {
	return &scanner.Output{
		Packages: []scanner.Package{
			{
				Name: "lodash", Version: "4.17.21",
				Path:         "/proj/node_modules/lodash",
				SizeBytes:    1000,
				MTime:        now.Add(-24 * time.Hour),
				ProjectPaths: []string{"/proj"},
			},
			{
				Name: "left-pad", Version: "1.3.0",
				Path:         "/proj/node_modules/left-pad",
				SizeBytes:    50,
				MTime:        now.Add(-24 * time.Hour),
				ProjectPaths: []string{"/proj"},
			},
		},
		Projects: []scanner.Project{
			{
				Path: "/proj",
				Dependencies: []scanner.Dependency{
					{Name: "lodash", Version: "4.17.21"},
				},
				MTime: now.Add(-24 * time.Hour),
			},
		},
	}
}

func reasonsByPath(r *Report) map[string]string {
	out := make(map[string]string)
	for _, item := range r.Items {
		out[item.TargetPath] = item.Reason
	}
	return out
}

func TestPlanBasicMarksOrphans(t *testing.T) {
	p := New(testOptions(), nil)
	report := p.PlanBasic(scanFixture(time.Now()))

	reasons := reasonsByPath(report)
	if reasons["/proj/node_modules/left-pad"] != ReasonOrphaned {
		t.Fatalf("left-pad reason = %q; want orphaned", reasons["/proj/node_modules/left-pad"])
	}
	if _, marked := reasons["/proj/node_modules/lodash"]; marked {
		t.Fatal("referenced fresh package should not be marked")
	}
	if report.TotalEstimatedBytes != 50 {
		t.Fatalf("TotalEstimatedBytes = %d; want 50", report.TotalEstimatedBytes)
	}
	if report.RunID == "" {
		t.Fatal("report should carry a run id")
	}
}

func TestPlanBasicMarksOldPackages(t *testing.T) {
	now := time.Now()
	scan := scanFixture(now)
	scan.Packages[0].MTime = now.Add(-120 * 24 * time.Hour)

	report := New(testOptions(), nil).PlanBasic(scan)
	reasons := reasonsByPath(report)
	if reasons["/proj/node_modules/lodash"] != ReasonOld {
		t.Fatalf("stale referenced package reason = %q; want old", reasons["/proj/node_modules/lodash"])
	}
}

func TestPlanBasicMarksDuplicates(t *testing.T) {
	now := time.Now()
	scan := scanFixture(now)
	scan.Packages = append(scan.Packages, scanner.Package{
		Name: "lodash", Version: "4.17.21",
		Path:      "/other/node_modules/lodash",
		SizeBytes: 1000,
		MTime:     now.Add(-24 * time.Hour),
	})

	report := New(testOptions(), nil).PlanBasic(scan)
	reasons := reasonsByPath(report)
	if reasons["/other/node_modules/lodash"] != ReasonDuplicate {
		t.Fatalf("second copy reason = %q; want duplicate", reasons["/other/node_modules/lodash"])
	}

	// Duplicate items contribute no estimated bytes.
	for _, item := range report.Items {
		if item.Reason == ReasonDuplicate && item.EstimatedSizeBytes != 0 {
			t.Fatalf("duplicate item carries %d bytes; want 0", item.EstimatedSizeBytes)
		}
	}
}

func TestPlanOptimizedKeepsRecentlyUsedOldPackage(t *testing.T) {
	now := time.Now()
	scan := scanFixture(now)
	// Old on disk but referenced and just accessed through the scan.
	scan.Packages[0].MTime = now.Add(-120 * 24 * time.Hour)

	report := New(testOptions(), nil).PlanOptimized(scan)
	reasons := reasonsByPath(report)

	// The scan access itself counts as recent use, so the LRU heuristic
	// argues to keep.
	if _, marked := reasons["/proj/node_modules/lodash"]; marked {
		t.Fatal("old but recently used package should survive the optimized plan")
	}
	if reasons["/proj/node_modules/left-pad"] != ReasonOrphaned {
		t.Fatal("orphans are removed regardless of usage")
	}
}

func TestPlanOptimizedDedupReason(t *testing.T) {
	now := time.Now()
	scan := scanFixture(now)
	scan.Packages = append(scan.Packages, scanner.Package{
		Name: "lodash", Version: "4.17.21",
		Path:  "/other/node_modules/lodash",
		MTime: now.Add(-24 * time.Hour),
	})

	opts := testOptions()
	opts.EnableDedup = true
	report := New(opts, nil).PlanOptimized(scan)
	reasons := reasonsByPath(report)
	if reasons["/other/node_modules/lodash"] != ReasonDuplicateSymlink {
		t.Fatalf("duplicate reason = %q; want symlink candidate", reasons["/other/node_modules/lodash"])
	}
}

func TestExecuteDedup(t *testing.T) {
	root := t.TempDir()

	makeCopy := func(app string) string {
		dir := filepath.Join(root, app, "node_modules", "lodash")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"lodash","version":"4.17.21"}`), 0o644); err != nil {
			t.Fatal(err)
		}
		return dir
	}
	first := makeCopy("app1")
	second := makeCopy("app2")

	scan := &scanner.Output{
		Packages: []scanner.Package{
			{Name: "lodash", Version: "4.17.21", Path: first},
			{Name: "lodash", Version: "4.17.21", Path: second},
		},
	}

	store, err := dedup.NewStore(filepath.Join(root, "store"), nil)
	if err != nil {
		t.Fatal(err)
	}

	count := New(testOptions(), nil).ExecuteDedup(scan, store)
	if count != 1 {
		t.Fatalf("deduplicated %d copies; want 1", count)
	}

	// First copy stays a real directory, second becomes a symlink.
	if info, err := os.Lstat(first); err != nil || info.Mode()&os.ModeSymlink != 0 {
		t.Fatal("canonical copy should remain a directory")
	}
	if info, err := os.Lstat(second); err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("second copy should be replaced by a symlink")
	}
}

func TestProjectLookupFollowsPackageLocation(t *testing.T) {
	projects := map[string]*predictor.ProjectMetadata{
		"/proj": {Path: "/proj", DependencyCount: 12},
	}

	// association comes from where the package sits, not from matching the
	// manifest's declared version range against the installed version
	pkg := scanner.Package{
		Name: "lodash", Version: "4.17.21",
		Path:         "/proj/node_modules/lodash",
		ProjectPaths: []string{"/proj"},
	}
	meta := projectForPackage(pkg, projects)
	if meta == nil || meta.Path != "/proj" {
		t.Fatalf("meta = %+v; want project /proj", meta)
	}

	cached := scanner.Package{
		Name: "lodash", Version: "4.17.21",
		Path: "/home/dev/.npm/lodash",
	}
	if meta := projectForPackage(cached, projects); meta != nil {
		t.Fatalf("cache-dir package should have no project, got %+v", meta)
	}
}
