package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// lockFilePrefix marks the owner files Excel creates for open workbooks.
const lockFilePrefix = "~$"

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(path string) string {
	if filepath.IsAbs(path) || d.basePath == "" {
		return path
	}
	return filepath.Join(d.basePath, path)
}

// IsWorkbook reports whether name looks like an importable workbook.
func IsWorkbook(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".xlsx") && !strings.HasPrefix(base, lockFilePrefix)
}

// FindWorkbooks finds all workbooks in dir, oldest first.
func (d *Discovery) FindWorkbooks(dir string) ([]domain.FileRef, error) {
	fullPath := d.resolve(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var refs []domain.FileRef
	for _, entry := range entries {
		if entry.IsDir() || !IsWorkbook(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		refs = append(refs, refFromInfo(filepath.Join(fullPath, entry.Name()), info))
	}

	sortByModTime(refs)
	return refs, nil
}

// FindByPattern finds workbooks matching a glob pattern inside dir.
func (d *Discovery) FindByPattern(dir, pattern string) ([]domain.FileRef, error) {
	searchPattern := filepath.Join(d.resolve(dir), pattern)

	matches, err := filepath.Glob(searchPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	var refs []domain.FileRef
	for _, match := range matches {
		if !IsWorkbook(match) {
			continue
		}
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		refs = append(refs, refFromInfo(match, info))
	}

	sortByModTime(refs)
	return refs, nil
}

// Stat builds a FileRef for a single workbook path.
func (d *Discovery) Stat(path string) (domain.FileRef, error) {
	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("failed to stat %s: %w", full, err)
	}
	if info.IsDir() {
		return domain.FileRef{}, fmt.Errorf("%s is a directory", full)
	}
	return refFromInfo(full, info), nil
}

// CanonicalPath returns the absolute, cleaned form of path. Collect stores
// paths in this form, so anything compared against them must use it too.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Collect expands a mix of workbook paths and directories into FileRefs.
// Directories contribute their workbooks; duplicates keep their first
// position. Paths are returned in CanonicalPath form.
func (d *Discovery) Collect(paths []string) ([]domain.FileRef, error) {
	seen := make(map[string]struct{})
	var refs []domain.FileRef
	add := func(ref domain.FileRef) {
		ref.Path = CanonicalPath(ref.Path)
		if _, dup := seen[ref.Path]; dup {
			return
		}
		seen[ref.Path] = struct{}{}
		refs = append(refs, ref)
	}

	for _, p := range paths {
		info, err := os.Stat(d.resolve(p))
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			found, err := d.FindWorkbooks(p)
			if err != nil {
				return nil, err
			}
			for _, ref := range found {
				add(ref)
			}
			continue
		}
		ref, err := d.Stat(p)
		if err != nil {
			return nil, err
		}
		add(ref)
	}
	return refs, nil
}

func refFromInfo(path string, info os.FileInfo) domain.FileRef {
	return domain.FileRef{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

func sortByModTime(refs []domain.FileRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].ModTime.Equal(refs[j].ModTime) {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ModTime.Before(refs[j].ModTime)
	})
}
