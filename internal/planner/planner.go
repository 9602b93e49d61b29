// Package planner turns a scan result into a removal plan. Plans are pure
// data; nothing is moved or deleted here. The caller hands selected targets
// to the quarantine ledger.
package planner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pkgsweep/internal/dedup"
	"pkgsweep/internal/logging"
	"pkgsweep/internal/predictor"
	"pkgsweep/internal/scanner"
	"pkgsweep/internal/usagecache"
)

// Removal reason tags carried on plan items.
const (
	ReasonOrphaned         = "orphaned"
	ReasonPredictedUnused  = "ml_predicted_unused"
	ReasonSizePressure     = "size_pressure"
	ReasonOld              = "old"
	ReasonDuplicate        = "duplicate"
	ReasonDuplicateSymlink = "duplicate_symlink_candidate"
)

// Item is one removal candidate.
type Item struct {
	TargetPath         string `json:"target_path"`
	EstimatedSizeBytes int64  `json:"estimated_size_bytes"`
	Reason             string `json:"reason"`
}

// Report is the full removal plan for one run.
type Report struct {
	RunID               string `json:"run_id"`
	Items               []Item `json:"items"`
	TotalEstimatedBytes int64  `json:"total_estimated_bytes"`
}

// Options configures plan construction.
type Options struct {
	PreserveDays int
	MaxPackages  int
	MaxSizeBytes int64
	// EnablePredictor consults the usage predictor before removing old
	// packages.
	EnablePredictor bool
	// EnableDedup marks extra copies of a package as symlink candidates
	// instead of plain duplicates.
	EnableDedup bool
}

// Planner builds removal plans over scan output.
type Planner struct {
	opts   Options
	usage  *usagecache.Cache
	pred   *predictor.Predictor
	logger *slog.Logger
	now    func() time.Time
}

// New creates a planner. The usage cache is built fresh per planner and
// populated from scan accesses.
func New(opts Options, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Planner{
		opts:   opts,
		usage:  usagecache.New(opts.MaxPackages, opts.MaxSizeBytes),
		logger: logging.NewComponentLogger(logger, "planner"),
		now:    time.Now,
	}
	if opts.EnablePredictor {
		p.pred = predictor.New(opts.PreserveDays)
	}
	return p
}

// PlanBasic marks orphans, packages older than the preservation window, and
// duplicate copies. No usage or predictor signals are consulted.
func (p *Planner) PlanBasic(scan *scanner.Output) *Report {
	cutoff := p.now().AddDate(0, 0, -p.opts.PreserveDays)
	used := usedDependencies(scan)

	report := &Report{RunID: uuid.NewString()}
	locations := make(map[string][]string)

	for _, pkg := range scan.Packages {
		key := pkg.Key()
		locations[key] = append(locations[key], pkg.Path)

		isOrphan := !used[key]
		isOld := pkg.MTime.Before(cutoff)

		if isOrphan || isOld {
			reason := ReasonOld
			if isOrphan {
				reason = ReasonOrphaned
			}
			report.Items = append(report.Items, Item{
				TargetPath:         pkg.Path,
				EstimatedSizeBytes: pkg.SizeBytes,
				Reason:             reason,
			})
		}
	}

	appendDuplicates(report, locations, ReasonDuplicate)
	p.finish(report)
	return report
}

// PlanOptimized additionally records each package in the usage cache and
// consults the recency heuristics and the optional predictor: an old
// package survives if either argues to keep it. Orphans are always removed.
func (p *Planner) PlanOptimized(scan *scanner.Output) *Report {
	cutoff := p.now().AddDate(0, 0, -p.opts.PreserveDays)
	used := usedDependencies(scan)
	projects := p.projectMetadata(scan)

	report := &Report{RunID: uuid.NewString()}
	locations := make(map[string][]string)

	for _, pkg := range scan.Packages {
		key := pkg.Key()
		locations[key] = append(locations[key], pkg.Path)

		p.usage.RecordAccess(key, pkg.SizeBytes)

		isOrphan := !used[key]
		isOld := pkg.MTime.Before(cutoff)

		keepML := true
		if p.pred != nil {
			metrics, _ := p.usage.Metrics(key)
			keepML = p.pred.ShouldKeep(metrics, projectForPackage(pkg, projects), nil)
		}
		keepLRU := p.usage.ShouldKeepLRU(key, p.opts.PreserveDays)

		if isOrphan || (isOld && !keepML && !keepLRU) {
			reason := ReasonOld
			switch {
			case isOrphan:
				reason = ReasonOrphaned
			case !keepML:
				reason = ReasonPredictedUnused
			case p.usage.IsSizeLimited():
				reason = ReasonSizePressure
			}
			report.Items = append(report.Items, Item{
				TargetPath:         pkg.Path,
				EstimatedSizeBytes: pkg.SizeBytes,
				Reason:             reason,
			})
		}
	}

	duplicateReason := ReasonDuplicate
	if p.opts.EnableDedup {
		duplicateReason = ReasonDuplicateSymlink
	}
	appendDuplicates(report, locations, duplicateReason)
	p.finish(report)
	return report
}

// ExecuteDedup replaces every extra copy of a package with a symlink into
// the store, keeping the first-seen location canonical. Returns the number
// of copies deduplicated; individual failures are logged and skipped.
func (p *Planner) ExecuteDedup(scan *scanner.Output, store *dedup.Store) int {
	canonical := make(map[string]string)
	count := 0

	for _, pkg := range scan.Packages {
		key := pkg.Key()
		if _, ok := canonical[key]; !ok {
			canonical[key] = pkg.Path
			continue
		}
		if err := store.Deduplicate(pkg.Path, pkg.Name, pkg.Version); err != nil {
			p.logger.Warn("deduplication failed",
				logging.String("path", pkg.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "copy left untouched"))
			continue
		}
		count++
	}
	return count
}

// Usage exposes the populated usage cache for reporting.
func (p *Planner) Usage() *usagecache.Cache { return p.usage }

// projectForPackage resolves the metadata of the first scanned project
// whose tree holds the package. The association comes from the package's
// location, so it survives version-range drift between manifest and
// installed copy.
func projectForPackage(pkg scanner.Package, projects map[string]*predictor.ProjectMetadata) *predictor.ProjectMetadata {
	for _, path := range pkg.ProjectPaths {
		if meta, ok := projects[path]; ok {
			return meta
		}
	}
	return nil
}

func (p *Planner) projectMetadata(scan *scanner.Output) map[string]*predictor.ProjectMetadata {
	projects := make(map[string]*predictor.ProjectMetadata, len(scan.Projects))
	for _, proj := range scan.Projects {
		projects[proj.Path] = &predictor.ProjectMetadata{
			Path:            proj.Path,
			ProjectType:     predictor.DetectProjectType(proj.Path),
			DependencyCount: len(proj.Dependencies),
			LastModified:    proj.MTime,
		}
	}
	return projects
}

func (p *Planner) finish(report *Report) {
	for _, item := range report.Items {
		report.TotalEstimatedBytes += item.EstimatedSizeBytes
	}
	p.logger.Info("plan built",
		logging.String(logging.FieldEventType, "plan_built"),
		logging.String("run_id", report.RunID),
		logging.Int("items", len(report.Items)),
		logging.Int64("total_estimated_bytes", report.TotalEstimatedBytes))
}

// usedDependencies collects every name@version referenced by any project.
func usedDependencies(scan *scanner.Output) map[string]bool {
	used := make(map[string]bool)
	for _, proj := range scan.Projects {
		for _, dep := range proj.Dependencies {
			used[dep.Name+"@"+dep.Version] = true
		}
	}
	return used
}

// appendDuplicates marks every location after the first for each package
// identity. Duplicate items carry zero estimated bytes since the canonical
// copy remains.
func appendDuplicates(report *Report, locations map[string][]string, reason string) {
	for _, paths := range locations {
		for _, path := range paths[1:] {
			report.Items = append(report.Items, Item{
				TargetPath: path,
				Reason:     reason,
			})
		}
	}
}
