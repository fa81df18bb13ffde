// Package index owns the on-disk representation of the local cache tier.
// One entry exists per model identifier: either a single compressed archive
// file or an expanded directory tree, named by the sanitized identifier.
// All writes land in a staging area under the cache root and are renamed
// into place, so a crash mid-write never leaves a corrupt entry visible.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jmgilman/go/modelcache/internal/keys"
)

// stagingDirName holds in-flight writes under the cache root. Keeping it on
// the same filesystem makes the final rename atomic.
const stagingDirName = ".staging"

// Index enumerates and mutates a cache root directory.
type Index struct {
	root    string
	archive bool
}

// New opens (creating if needed) the cache root. archive selects the entry
// representation: a <sanitized>.tar.gz file when true, a <sanitized>/
// directory tree when false.
func New(root string, archive bool) (*Index, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, stagingDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Index{root: root, archive: archive}, nil
}

// Root returns the cache root directory.
func (ix *Index) Root() string {
	return ix.root
}

// EntryPath returns the local path an identifier maps to under the
// configured representation. The path may or may not exist.
func (ix *Index) EntryPath(id string) string {
	name := keys.Sanitize(id)
	if ix.archive {
		name += keys.ArchiveSuffix
	}
	return filepath.Join(ix.root, name)
}

// Valid reports whether a usable entry exists for the identifier: a
// non-empty archive file, or a directory with at least one entry. The check
// is O(1) filesystem stats only.
func (ix *Index) Valid(id string) bool {
	path := ix.EntryPath(id)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if ix.archive {
		return info.Mode().IsRegular() && info.Size() > 0
	}
	if !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err == nil
}

// Size returns the byte size of an entry: the archive file size, or the sum
// of regular file sizes under the tree.
func (ix *Index) Size(id string) (int64, error) {
	path := ix.EntryPath(id)
	if ix.archive {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	var total int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// List scans the cache root and returns the identifiers of all valid
// entries, sorted.
func (ix *Index) List() ([]string, error) {
	entries, err := os.ReadDir(ix.root)
	if err != nil {
		return nil, fmt.Errorf("scan cache root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if name == stagingDirName {
			continue
		}
		if ix.archive {
			if entry.IsDir() || !strings.HasSuffix(name, keys.ArchiveSuffix) {
				continue
			}
			ids = append(ids, keys.Decode(strings.TrimSuffix(name, keys.ArchiveSuffix)))
		} else {
			if !entry.IsDir() {
				continue
			}
			ids = append(ids, keys.Decode(name))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes the local entry for an identifier. It reports whether an
// entry existed.
func (ix *Index) Remove(id string) (bool, error) {
	path := ix.EntryPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(path); err != nil {
		return true, fmt.Errorf("remove local entry: %w", err)
	}
	return true, nil
}

// StagingDir creates a fresh directory in the staging area and returns its
// path. The caller either commits content out of it or discards it.
func (ix *Index) StagingDir() (string, error) {
	path := filepath.Join(ix.root, stagingDirName, uuid.NewString())
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return path, nil
}

// StagingFile returns a path for a new file in the staging area. The file
// is not created.
func (ix *Index) StagingFile(suffix string) string {
	return filepath.Join(ix.root, stagingDirName, uuid.NewString()+suffix)
}

// Commit promotes staged content to the identifier's entry path with a
// rename. Any existing entry is replaced. Returns the final local path.
func (ix *Index) Commit(staged, id string) (string, error) {
	dest := ix.EntryPath(id)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear previous entry: %w", err)
	}
	if err := os.Rename(staged, dest); err != nil {
		return "", fmt.Errorf("commit entry: %w", err)
	}
	return dest, nil
}

// Discard removes staged content, ignoring errors. Safe to call with an
// empty path.
func (ix *Index) Discard(staged string) {
	if staged == "" {
		return
	}
	_ = os.RemoveAll(staged)
}
