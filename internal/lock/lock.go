// Package lock implements validate's file hashing and the staleness check
// every later stage (plan, apply, status) uses to decide whether prior
// derived state can still be trusted.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"bman/internal/logging"
	"bman/internal/pack"
	"bman/internal/schema"
)

// InputFiles lists the pack-relative paths validate hashes: config, scenario
// plan, semantics (which also holds the surface overlays, so they are not
// listed separately), and every file under queries/, sorted by name. The
// surface inventory is not hashed: neither inventory/surface.json nor the
// help evidence it is rendered from appears in this list.
func InputFiles(p *pack.Pack) ([]string, error) {
	files := []string{
		pack.ConfigPath,
		pack.ScenarioPlanPath,
		pack.SemanticsPath,
	}
	queryDir, err := pack.Resolve(p, pack.QueriesDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(queryDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("lock: read queries dir: %w", err)
	}
	var queryFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		queryFiles = append(queryFiles, pack.QueriesDir+"/"+e.Name())
	}
	sort.Strings(queryFiles)
	files = append(files, queryFiles...)
	return files, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compute hashes every input file and returns a fresh lock value. It does
// not write anything to disk — see Write.
func Compute(p *pack.Pack, files []string, now int64) (*schema.Lock, error) {
	lock := &schema.Lock{GeneratedAt: now}
	for _, rel := range files {
		full, err := pack.Resolve(p, rel)
		if err != nil {
			return nil, err
		}
		hash, err := hashFile(full)
		if err != nil {
			return nil, fmt.Errorf("lock: hash %s: %w", rel, err)
		}
		lock.Entries = append(lock.Entries, schema.LockEntry{Path: rel, Hash: hash})
	}
	return lock, nil
}

// Write persists a lock to enrich/lock.json.
func Write(p *pack.Pack, lock *schema.Lock) error {
	full, err := pack.Resolve(p, pack.LockPath)
	if err != nil {
		return err
	}
	if err := schema.WriteFile(full, lock); err != nil {
		return err
	}
	logging.For(logging.CategoryLock).Info("lock written", map[string]interface{}{
		"entries": len(lock.Entries),
	})
	return nil
}

// Load reads the current lock, or nil if validate has never run.
func Load(p *pack.Pack) (*schema.Lock, error) {
	full, err := pack.Resolve(p, pack.LockPath)
	if err != nil {
		return nil, err
	}
	return schema.LoadLock(full)
}

// Stale reports whether any locked file's current on-disk hash differs from
// what's recorded in lock, or whether no lock exists at all. The returned
// slice names the changed (or, if lock is nil, all candidate) files.
func Stale(p *pack.Pack, lock *schema.Lock, files []string) (bool, []string, error) {
	if lock == nil {
		return true, files, nil
	}
	var changed []string
	for _, rel := range files {
		full, err := pack.Resolve(p, rel)
		if err != nil {
			return false, nil, err
		}
		hash, err := hashFile(full)
		if err != nil {
			return false, nil, fmt.Errorf("lock: hash %s: %w", rel, err)
		}
		locked, ok := lock.HashOf(rel)
		if !ok || locked != hash {
			changed = append(changed, rel)
		}
	}
	return len(changed) > 0, changed, nil
}
