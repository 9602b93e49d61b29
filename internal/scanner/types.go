// Package scanner discovers installed package directories, package-manager
// caches, and project roots under a set of filesystem roots.
package scanner

import "time"

// Manager identifies the package manager a project or cache belongs to.
type Manager string

const (
	ManagerNpm  Manager = "npm"
	ManagerYarn Manager = "yarn"
	ManagerPnpm Manager = "pnpm"
)

// Dependency is one declared or locked dependency edge.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Package is one discovered installed package directory. ProjectPaths lists
// the project roots whose node_modules tree holds the package; packages
// found in manager caches have none.
type Package struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	ATime        time.Time `json:"atime"`
	MTime        time.Time `json:"mtime"`
	Manager      Manager   `json:"manager,omitempty"`
	ProjectPaths []string  `json:"project_paths,omitempty"`
}

// Key returns the name@version identity used by the usage cache and planner.
func (p Package) Key() string {
	return p.Name + "@" + p.Version
}

// Project is one discovered project root (a package.json outside any
// node_modules tree).
type Project struct {
	Path         string       `json:"path"`
	Manager      Manager      `json:"manager,omitempty"`
	Dependencies []Dependency `json:"dependencies"`
	MTime        time.Time    `json:"mtime"`
}

// Output is the result of one scan.
type Output struct {
	Packages []Package `json:"packages"`
	Projects []Project `json:"projects"`
}

// TotalSizeBytes sums discovered package sizes.
func (o *Output) TotalSizeBytes() int64 {
	var total int64
	for _, p := range o.Packages {
		total += p.SizeBytes
	}
	return total
}
