package query

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bman/internal/pack"
)

// LoadTemplates reads every *.sql file under <pack-root>/queries, one
// template per file, keyed by the file's base name with the extension
// stripped (usage_extraction.sql -> "usage_extraction"). Template content is
// whatever SELECT statement the pack author wrote; this package applies no
// validation at all (an empty file loads as an empty template) — a malformed template surfaces as a
// SQLite error at Run time, which is reported as a query engine error per
// spec.md §7 (the affected derived artifact is omitted, not a fatal abort).
func LoadTemplates(p *pack.Pack) (map[string]string, error) {
	dir, err := pack.Resolve(p, pack.QueriesDir)
	if err != nil {
		return nil, fmt.Errorf("query: resolve queries dir: %w", err)
	}
	return loadTemplatesFromDir(dir)
}

func loadTemplatesFromDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query: read queries dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	templates := make(map[string]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("query: read template %q: %w", name, err)
		}
		key := strings.TrimSuffix(name, ".sql")
		templates[key] = string(data)
	}
	return templates, nil
}
