// Package scanner enumerates candidate source files under include/exclude
// globs and a size cap, and classifies them against a tracking map as
// changed or deleted.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/xxh3"

	"github.com/codeatlas/codeatlas/internal/model"
)

// HashThreshold is the content size above which hashing switches from
// SHA-256 of the content to a constant-time metadata digest.
const HashThreshold = 1 << 20 // 1 MiB

// ignoreDirs are directory names always skipped, before glob matching.
var ignoreDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".idea": true, ".vscode": true,
	".cache": true, ".venv": true, ".tox": true, ".mypy_cache": true,
	".pytest_cache": true, ".ruff_cache": true, "__pycache__": true,
	"node_modules": true, "bower_components": true, "vendor": true,
	"dist": true, "build": true, "target": true, "coverage": true,
	"out": true, "tmp": true, "venv": true,
}

// Options configures a scan.
type Options struct {
	Include     []string
	Exclude     []string
	MaxFileSize int64
}

// Result reports one scan. Changed and Deleted are only meaningful when a
// tracking map was supplied; otherwise Changed == Files and Deleted is empty.
// Hashes and MTimes cover the changed files (hashing is lazy).
type Result struct {
	Files   []string
	Changed []string
	Deleted []string
	Hashes  map[string]string
	MTimes  map[string]int64
}

// Scan walks root and classifies every matching file against tracked.
func Scan(ctx context.Context, root string, opts Options, tracked map[string]model.FileRecord) (*Result, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Hashes: make(map[string]string),
		MTimes: make(map[string]int64),
	}
	mtimes := make(map[string]int64)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchGlobs(opts.Include, rel) || matchGlobs(opts.Exclude, rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil
		}
		res.Files = append(res.Files, path)
		mtimes[path] = info.ModTime().UnixNano()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tracked == nil {
		// No baseline: everything is new.
		res.Changed = append(res.Changed, res.Files...)
		for _, f := range res.Changed {
			res.MTimes[f] = mtimes[f]
			if h, hErr := HashFile(f); hErr == nil {
				res.Hashes[f] = h
			}
		}
		return res, nil
	}

	present := make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		present[f] = true
		rec, ok := tracked[f]
		if ok && rec.MTime == mtimes[f] {
			continue
		}
		res.Changed = append(res.Changed, f)
		res.MTimes[f] = mtimes[f]
		if h, hErr := HashFile(f); hErr == nil {
			res.Hashes[f] = h
		}
	}
	for path := range tracked {
		if !present[path] {
			res.Deleted = append(res.Deleted, path)
		}
	}
	return res, nil
}

func matchGlobs(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// HashFile returns a stable digest for change detection. Files under
// HashThreshold get a SHA-256 of the content; larger files get an xxh3
// digest of (path, mtime, size) which never reads the content.
func HashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > HashThreshold {
		return metaDigest(path, info), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// metaDigest hashes path, mtime and size without touching the content.
func metaDigest(path string, info fs.FileInfo) string {
	meta := fmt.Sprintf("%s\x00%d\x00%d", path, info.ModTime().UnixNano(), info.Size())
	return fmt.Sprintf("meta-%016x", xxh3.HashString(meta))
}
