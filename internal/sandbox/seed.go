package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"bman/internal/schema"
)

// Materialize writes every seed entry under dir, which must already exist.
// Paths are validated relative to dir: absolute paths or ".." components are
// rejected, and any symlink entry whose resolved target escapes dir is
// rejected after creation. Any such seed error is returned to Runner.Run,
// which reports it as a setup error and writes no evidence record.
func Materialize(dir string, seed *schema.SeedSpec) error {
	if seed == nil {
		return nil
	}
	for _, e := range seed.Entries {
		if err := validateRelative(e.Path); err != nil {
			return fmt.Errorf("seed %q: %w", e.Path, err)
		}
		full := filepath.Join(dir, filepath.FromSlash(e.Path))

		switch e.Type {
		case schema.SeedDir:
			if err := os.MkdirAll(full, 0o755); err != nil {
				return fmt.Errorf("seed %q: mkdir: %w", e.Path, err)
			}
		case schema.SeedFile:
			if err := writeSeedFile(full, e.Contents, 0o644); err != nil {
				return err
			}
		case schema.SeedExecutable:
			mode := os.FileMode(0o755)
			if e.Mode != "" {
				if parsed, err := strconv.ParseUint(e.Mode, 8, 32); err == nil {
					mode = os.FileMode(parsed)
				}
			}
			if err := writeSeedFile(full, e.Contents, mode); err != nil {
				return err
			}
		case schema.SeedSymlink:
			if err := validateRelative(e.Target); err != nil {
				return fmt.Errorf("seed %q: symlink target: %w", e.Path, err)
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return fmt.Errorf("seed %q: mkdir parent: %w", e.Path, err)
			}
			if err := os.Symlink(e.Target, full); err != nil {
				return fmt.Errorf("seed %q: symlink: %w", e.Path, err)
			}
			resolved, err := filepath.EvalSymlinks(full)
			if err == nil {
				if rel, relErr := filepath.Rel(dir, resolved); relErr != nil || strings.HasPrefix(rel, "..") {
					return fmt.Errorf("seed %q: symlink escapes run directory", e.Path)
				}
			}
		default:
			return fmt.Errorf("seed %q: unknown type %q", e.Path, e.Type)
		}
	}
	return nil
}

func writeSeedFile(full, contents string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("seed: mkdir parent of %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(contents), mode); err != nil {
		return fmt.Errorf("seed: write %s: %w", full, err)
	}
	return nil
}

func validateRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("absolute path not allowed")
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("path escapes run directory")
		}
	}
	return nil
}

// Signature computes a stable seed signature: a hash of each entry's path,
// type, and content/target, sorted by path. Two scenarios sharing a seed
// signature are considered to share a seed path for behavior delta-proof
// purposes (spec.md §3 invariant on baseline/variant seed signatures).
func Signature(seed *schema.SeedSpec) string {
	if seed == nil || len(seed.Entries) == 0 {
		return ""
	}
	type view struct{ path, kind, body string }
	views := make([]view, 0, len(seed.Entries))
	for _, e := range seed.Entries {
		body := e.Contents
		if e.Type == schema.SeedSymlink {
			body = e.Target
		}
		views = append(views, view{e.Path, string(e.Type), body})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].path < views[j].path })

	h := sha256.New()
	for _, v := range views {
		h.Write([]byte(v.path))
		h.Write([]byte{0})
		h.Write([]byte(v.kind))
		h.Write([]byte{0})
		h.Write([]byte(v.body))
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}
