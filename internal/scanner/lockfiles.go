package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Lockfile parsing is deliberately shallow: the planner only needs the set
// of (name, version) pairs a project pins, not a faithful dependency graph.
// Parse failures yield an empty list, never an error.

func detectManager(dir string) Manager {
	if fileExists(filepath.Join(dir, "package-lock.json")) {
		return ManagerNpm
	}
	if fileExists(filepath.Join(dir, "yarn.lock")) {
		return ManagerYarn
	}
	if fileExists(filepath.Join(dir, "pnpm-lock.yaml")) {
		return ManagerPnpm
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// parseNpmLock reads the nested dependencies tree of a package-lock.json.
func parseNpmLock(path string) []Dependency {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var lock struct {
		Dependencies map[string]npmLockNode `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil
	}

	var deps []Dependency
	var walk func(nodes map[string]npmLockNode)
	walk = func(nodes map[string]npmLockNode) {
		for name, node := range nodes {
			deps = append(deps, Dependency{Name: name, Version: node.Version})
			walk(node.Dependencies)
		}
	}
	walk(lock.Dependencies)
	return deps
}

type npmLockNode struct {
	Version      string                 `json:"version"`
	Dependencies map[string]npmLockNode `json:"dependencies"`
}

// parseYarnLock scans yarn.lock blocks for resolved versions. The format is
// line oriented: an unindented `name@range:` header followed by indented
// fields including `version "x.y.z"`.
func parseYarnLock(path string) []Dependency {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var deps []Dependency
	var current string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, " \r")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if !strings.HasPrefix(trimmed, " ") && strings.HasSuffix(trimmed, ":") {
			key := strings.Trim(strings.TrimSuffix(trimmed, ":"), `"`)
			// "name@range" possibly comma separated; take the first
			// descriptor's name, honoring @scope/ prefixes.
			first := strings.Split(key, ",")[0]
			first = strings.Trim(strings.TrimSpace(first), `"`)
			if at := strings.LastIndex(first, "@"); at > 0 {
				current = first[:at]
			} else {
				current = first
			}
			continue
		}

		body := strings.TrimSpace(trimmed)
		if current != "" && strings.HasPrefix(body, "version ") {
			version := strings.Trim(strings.TrimPrefix(body, "version "), `"`)
			deps = append(deps, Dependency{Name: current, Version: version})
			current = ""
		}
	}
	return deps
}

// parsePnpmLock scans the packages section of a pnpm-lock.yaml for
// `/name/version:` style keys.
func parsePnpmLock(path string) []Dependency {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var deps []Dependency
	inPackages := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, " \r")
		if strings.HasPrefix(trimmed, "packages:") {
			inPackages = true
			continue
		}
		if !inPackages {
			continue
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, " ") {
			// New top-level section ends the packages block.
			inPackages = false
			continue
		}

		body := strings.TrimSpace(trimmed)
		if !strings.HasSuffix(body, ":") {
			continue
		}
		key := strings.Trim(strings.TrimSuffix(body, ":"), `"'`)
		if !strings.HasPrefix(key, "/") {
			continue
		}
		// Keys look like /name/1.2.3 or /@scope/name/1.2.3.
		key = strings.TrimPrefix(key, "/")
		slash := strings.LastIndex(key, "/")
		if slash <= 0 {
			continue
		}
		name, version := key[:slash], key[slash+1:]
		if name == "" || version == "" || !startsAlphanumeric(version) {
			continue
		}
		deps = append(deps, Dependency{Name: name, Version: version})
	}
	return deps
}

func startsAlphanumeric(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return false
}
