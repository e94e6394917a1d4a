package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"bman/internal/schema"
)

// evaluateFileChecks snapshots the run directory's filesystem state for
// every asserted path after the scenario has finished running.
func evaluateFileChecks(dir string, specs []FileCheckSpec) []schema.FileCheck {
	if len(specs) == 0 {
		return nil
	}
	results := make([]schema.FileCheck, 0, len(specs))
	for _, spec := range specs {
		full := filepath.Join(dir, filepath.FromSlash(spec.Path))
		info, err := os.Stat(full)
		exists := err == nil
		isDir := exists && info.IsDir()

		var holds bool
		switch spec.Kind {
		case "file_exists":
			holds = exists && !isDir
		case "dir_exists":
			holds = exists && isDir
		case "file_missing":
			holds = !exists
		case "dir_missing":
			holds = !exists
		case "file_contains":
			holds = false
			if exists && !isDir {
				if data, readErr := os.ReadFile(full); readErr == nil {
					holds = strings.Contains(string(data), spec.Needle)
				}
			}
		}

		results = append(results, schema.FileCheck{
			Path:   spec.Path,
			Kind:   spec.Kind,
			Holds:  holds,
			Needle: spec.Needle,
		})
	}
	return results
}
