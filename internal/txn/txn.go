// Package txn implements the Apply Transaction (C7): a staged workspace
// under enrich/txns/<uuid>/ holding a manifest.json (planned checked files
// plus the lock snapshot), a staging/ subtree mirroring the derived-artifact
// layout, and a backups/ subtree for whatever Commit replaces. Commit
// re-hashes every checked input against the open-time lock, then for each
// staged file renames the currently-committed file into backups/ (if
// present) and renames the staged file into place — same-filesystem
// os.Rename, atomic per POSIX — before appending one enrich/history.jsonl
// line and removing the whole workspace. Evidence files are written
// directly to inventory/scenarios/<id>.json outside the transaction, per
// the append-only invariant — txn never stages or backs those up.
package txn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"bman/internal/logging"
	"bman/internal/pack"
	"bman/internal/schema"
)

// IntegrityError is returned by Commit when a file the plan depends on
// changed on disk since the transaction opened. A leftover transaction
// workspace is not reported with it; DiscardStale simply removes it. The
// CLI maps this to exit code 3 (spec.md §6).
type IntegrityError struct {
	Path string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("txn: input %q changed since plan was derived", e.Path)
}

// Transaction owns one enrich/txns/<id>/ staging workspace.
type Transaction struct {
	ID      string
	pack    *pack.Pack
	dir     string
	staged  map[string]string // pack-relative path -> staged absolute path
	lock    *schema.Lock
	checked []string // pack-relative paths to re-hash at commit time
}

// manifest is enrich/txns/<id>/manifest.json: the checked input paths and
// the lock snapshot, recorded at open time. Commit works from the
// Transaction's in-memory fields and does not read the manifest back.
type manifest struct {
	ID      string   `json:"id"`
	Checked []string `json:"checked_files"`
	Lock    schema.Lock `json:"lock_snapshot"`
}

// Open creates a fresh transaction workspace. lock is the snapshot taken
// when the plan this transaction executes was derived; Commit re-hashes
// every path in checkedFiles against it before touching the committed tree.
func Open(p *pack.Pack, lock *schema.Lock, checkedFiles []string) (*Transaction, error) {
	id := uuid.NewString()
	dir, err := pack.Resolve(p, filepath.ToSlash(filepath.Join(pack.TxnDir, id)))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("txn: create workspace: %w", err)
	}
	t := &Transaction{
		ID:      id,
		pack:    p,
		dir:     dir,
		staged:  make(map[string]string),
		lock:    lock,
		checked: checkedFiles,
	}
	m := manifest{ID: id, Checked: checkedFiles}
	if lock != nil {
		m.Lock = *lock
	}
	data, err := schema.Canonical(m)
	if err != nil {
		return nil, fmt.Errorf("txn: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("txn: write manifest: %w", err)
	}
	return t, nil
}

// Stage writes v as canonical JSON into the transaction's staging area under
// relPath (a pack-relative path such as inventory/surface.json), to be moved
// into place atomically at Commit.
func (t *Transaction) Stage(relPath string, v interface{}) error {
	data, err := schema.Canonical(v)
	if err != nil {
		return fmt.Errorf("txn: encode %s: %w", relPath, err)
	}
	return t.StageBytes(relPath, data)
}

// StageBytes stages raw bytes (used by man rendering, which produces
// non-JSON artifacts) under relPath.
func (t *Transaction) StageBytes(relPath string, data []byte) error {
	stagingRel := filepath.ToSlash(filepath.Join("staging", relPath))
	full := filepath.Join(t.dir, filepath.FromSlash(stagingRel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("txn: create staging dir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("txn: write staged %s: %w", relPath, err)
	}
	t.staged[relPath] = full
	return nil
}

// renamedFile tracks one destPath Commit has already touched, so a later
// failure in the same loop can be unwound in reverse.
type renamedFile struct {
	relPath    string
	destPath   string
	backupPath string
	hadBackup  bool
}

// Commit verifies no checked input changed since the lock snapshot, then
// moves every staged file into the pack root (backing up whatever it
// replaces), appends a history event, and removes the workspace. If any
// rename in the loop fails partway through, every file already moved into
// place this call is rolled back from its backup (or removed, if it didn't
// exist before) before the workspace is discarded — spec.md's "apply never
// leaves a partially published derived artifact" invariant applies to a
// rename failure exactly as it does to a stale lock.
func (t *Transaction) Commit(historyEvent schema.HistoryEvent) error {
	log := logging.For(logging.CategoryTxn)

	if err := t.verifyIntegrity(); err != nil {
		log.Error("integrity check failed, aborting", map[string]interface{}{"txn_id": t.ID, "error": err.Error()})
		_ = t.Abort()
		return err
	}

	backupsDir := filepath.Join(t.dir, "backups")
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return fmt.Errorf("txn: create backups dir: %w", err)
	}

	var done []renamedFile
	for relPath, stagedPath := range t.staged {
		destPath, err := pack.Resolve(t.pack, relPath)
		if err != nil {
			t.rollback(done)
			_ = t.Abort()
			return err
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			t.rollback(done)
			_ = t.Abort()
			return fmt.Errorf("txn: create parent dir for %s: %w", relPath, err)
		}
		rf := renamedFile{relPath: relPath, destPath: destPath, backupPath: filepath.Join(backupsDir, sanitizeRel(relPath))}
		if _, err := os.Stat(destPath); err == nil {
			if err := os.Rename(destPath, rf.backupPath); err != nil {
				t.rollback(done)
				_ = t.Abort()
				return fmt.Errorf("txn: back up %s: %w", relPath, err)
			}
			rf.hadBackup = true
		} else if !errors.Is(err, os.ErrNotExist) {
			t.rollback(done)
			_ = t.Abort()
			return fmt.Errorf("txn: stat %s: %w", relPath, err)
		}
		if err := os.Rename(stagedPath, destPath); err != nil {
			// destPath's backup (if any) was already moved aside above;
			// fold this entry into done so rollback restores it too.
			done = append(done, rf)
			t.rollback(done)
			_ = t.Abort()
			return fmt.Errorf("txn: commit %s: %w", relPath, err)
		}
		done = append(done, rf)
	}

	if err := appendHistory(t.pack, historyEvent); err != nil {
		log.Warn("failed to append history event after commit", map[string]interface{}{"txn_id": t.ID, "error": err.Error()})
	}

	if err := os.RemoveAll(t.dir); err != nil {
		log.Warn("failed to remove transaction workspace after commit", map[string]interface{}{"txn_id": t.ID, "error": err.Error()})
	}
	log.Info("transaction committed", map[string]interface{}{"txn_id": t.ID, "files": len(t.staged)})
	return nil
}

// rollback undoes every renamedFile in done, last-touched first: a file that
// had a prior committed copy gets that copy moved back from backups/; a file
// that didn't exist before this commit gets removed.
func (t *Transaction) rollback(done []renamedFile) {
	log := logging.For(logging.CategoryTxn)
	for i := len(done) - 1; i >= 0; i-- {
		rf := done[i]
		if rf.hadBackup {
			if err := os.Rename(rf.backupPath, rf.destPath); err != nil {
				log.Error("rollback: failed to restore backup", map[string]interface{}{"txn_id": t.ID, "path": rf.relPath, "error": err.Error()})
			}
			continue
		}
		if err := os.Remove(rf.destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("rollback: failed to remove partially committed file", map[string]interface{}{"txn_id": t.ID, "path": rf.relPath, "error": err.Error()})
		}
	}
}

// Abort discards the entire workspace, leaving the committed tree untouched.
func (t *Transaction) Abort() error {
	return os.RemoveAll(t.dir)
}

// verifyIntegrity re-hashes every checked path and compares it against the
// lock the transaction opened with.
func (t *Transaction) verifyIntegrity() error {
	for _, rel := range t.checked {
		full, err := pack.Resolve(t.pack, rel)
		if err != nil {
			return err
		}
		fresh, err := hashFile(full)
		if err != nil {
			return fmt.Errorf("txn: rehash %s: %w", rel, err)
		}
		locked, ok := t.lock.HashOf(rel)
		if !ok || locked != fresh {
			return &IntegrityError{Path: rel}
		}
	}
	return nil
}

// sanitizeRel turns a pack-relative path into a flat, filesystem-safe name
// for the backups directory.
func sanitizeRel(rel string) string {
	return filepath.Base(filepath.Dir(rel)) + "_" + filepath.Base(rel)
}

// DiscardStale removes a leftover enrich/txns/<id>/ directory found at the
// start of a command — a crash marker from an interrupted apply (spec.md
// §5). It never touches the committed tree.
func DiscardStale(p *pack.Pack) ([]string, error) {
	dir, err := pack.Resolve(p, pack.TxnDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("txn: read %s: %w", pack.TxnDir, err)
	}
	var discarded []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(full); err != nil {
			return discarded, fmt.Errorf("txn: discard stale workspace %s: %w", e.Name(), err)
		}
		discarded = append(discarded, e.Name())
	}
	return discarded, nil
}
