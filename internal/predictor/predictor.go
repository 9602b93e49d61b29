// Package predictor scores how likely a package is to be needed again,
// from usage metrics, project metadata, and observed developer behavior.
// The model is a fixed hand-weighted linear score squashed by a sigmoid;
// there is no training and no I/O, so identical inputs always score the
// same.
package predictor

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkgsweep/internal/usagecache"
)

// ProjectMetadata describes the project a package is installed for.
type ProjectMetadata struct {
	Path            string     `json:"path"`
	ProjectType     string     `json:"project_type"`
	LastCommitDate  *time.Time `json:"last_commit_date,omitempty"`
	DependencyCount int        `json:"dependency_count"`
	LastModified    time.Time  `json:"last_modified"`
}

// DeveloperBehavior captures recent workflow signals around a project.
type DeveloperBehavior struct {
	NpmCommandsExecuted []string `json:"npm_commands_executed"`
	FileAccessFrequency int      `json:"file_access_frequency"`
	DaysSinceLastBuild  *int     `json:"days_since_last_build,omitempty"`
}

// keepThreshold is the sigmoid score above which a package is kept.
const keepThreshold = 0.5

// Predictor scores packages against a preservation window.
type Predictor struct {
	preserveDays int
	now          func() time.Time
}

// New creates a predictor calibrated to the given preservation window.
func New(preserveDays int) *Predictor {
	if preserveDays < 1 {
		preserveDays = 1
	}
	return &Predictor{
		preserveDays: preserveDays,
		now:          time.Now,
	}
}

// ShouldKeep reports whether the package should survive cleanup. Missing
// metrics score as never used; missing project or behavior data contributes
// nothing rather than penalizing.
func (p *Predictor) ShouldKeep(metrics *usagecache.Metrics, project *ProjectMetadata, behavior *DeveloperBehavior) bool {
	return p.Score(metrics, project, behavior) >= keepThreshold
}

// Score returns the raw keep probability in [0, 1].
func (p *Predictor) Score(metrics *usagecache.Metrics, project *ProjectMetadata, behavior *DeveloperBehavior) float64 {
	now := p.now()
	window := float64(p.preserveDays)

	var score float64

	if metrics != nil {
		// Recency dominates: a package accessed within the window scores
		// positive, decaying linearly past it.
		daysSinceAccess := now.Sub(metrics.LastAccess).Hours() / 24
		score += 2.0 * (1 - daysSinceAccess/window)

		// Repeated accesses saturate around ten.
		score += 0.8 * math.Min(float64(metrics.AccessCount)/10, 1)

		if metrics.ScriptExecutionCount > 0 {
			score += 0.5
		}
		if metrics.LastSuccessfulBuild != nil {
			daysSinceBuild := now.Sub(*metrics.LastSuccessfulBuild).Hours() / 24
			score += 0.7 * (1 - math.Min(daysSinceBuild/window, 1))
		}
	} else {
		score -= 2.0
	}

	if project != nil {
		daysSinceModified := now.Sub(project.LastModified).Hours() / 24
		score += 0.6 * (1 - math.Min(daysSinceModified/window, 1))

		// Packages in small dependency trees are more likely deliberate.
		if project.DependencyCount > 0 && project.DependencyCount < 20 {
			score += 0.2
		}
		if project.LastCommitDate != nil {
			daysSinceCommit := now.Sub(*project.LastCommitDate).Hours() / 24
			if daysSinceCommit < window {
				score += 0.4
			}
		}
	}

	if behavior != nil {
		if len(behavior.NpmCommandsExecuted) > 0 {
			score += 0.3
		}
		score += 0.2 * math.Min(float64(behavior.FileAccessFrequency)/50, 1)
		if behavior.DaysSinceLastBuild != nil && float64(*behavior.DaysSinceLastBuild) < window {
			score += 0.3
		}
	}

	return sigmoid(score)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// DetectProjectType classifies a project directory from its manifest and
// well-known config files.
func DetectProjectType(projectPath string) string {
	manifestPath := filepath.Join(projectPath, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "node"
	}

	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err == nil {
		if hasAny(manifest.Dependencies, "react", "next") {
			return "react"
		}
		if hasAny(manifest.Dependencies, "vue", "nuxt") {
			return "vue"
		}
		if hasAny(manifest.Dependencies, "angular", "@angular/core") {
			return "angular"
		}
		if hasAny(manifest.DevDependencies, "typescript", "tsc") {
			return "typescript"
		}
	}

	if _, err := os.Stat(filepath.Join(projectPath, "tsconfig.json")); err == nil {
		return "typescript"
	}
	if _, err := os.Stat(filepath.Join(projectPath, "next.config.js")); err == nil {
		return "nextjs"
	}
	if _, err := os.Stat(filepath.Join(projectPath, "next.config.ts")); err == nil {
		return "nextjs"
	}

	lower := strings.ToLower(projectPath)
	if strings.Contains(lower, "react") || strings.Contains(lower, "next") {
		return "react"
	}

	return "node"
}

func hasAny(deps map[string]string, names ...string) bool {
	for _, name := range names {
		if _, ok := deps[name]; ok {
			return true
		}
	}
	return false
}
