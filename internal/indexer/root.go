package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// fallbackDirLabel labels files when no directory name is available
const fallbackDirLabel = "root"

// Root is a directory handle: a file system to walk plus the host path it
// was opened from. Tests pass an fstest.MapFS with a made-up Path.
type Root struct {
	FS   fs.FS
	Path string
}

// OpenRoot resolves dir to an absolute directory and opens it
func OpenRoot(dir string) (Root, error) {
	if strings.TrimSpace(dir) == "" {
		return Root{}, fmt.Errorf("%w: empty path", ErrRootUnavailable)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("%w: %s is not a directory", ErrRootUnavailable, abs)
	}
	return Root{FS: os.DirFS(abs), Path: abs}, nil
}

// RunPath is the canonical IndexRun key for this root: the path relative to
// the user's home directory when the root lies beneath it, otherwise the
// cleaned absolute path. Separators are always forward slashes.
func (r Root) RunPath() string {
	p := filepath.Clean(r.Path)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		rel, err := filepath.Rel(filepath.Clean(home), p)
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}

// FileID returns the stable document id for a slash-separated path under the root
func (r Root) FileID(rel string) string {
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

// DirLabel names the directory holding rel: its parent directory, or the
// root's own name for top-level files.
func (r Root) DirLabel(rel string) string {
	if dir := path.Dir(rel); dir != "." {
		return path.Base(dir)
	}
	base := filepath.Base(filepath.Clean(r.Path))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return fallbackDirLabel
	}
	return base
}

// NormalizeExtensions trims, lower-cases and strips one leading dot from
// each entry, dropping empties and duplicates. The result is sorted.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
