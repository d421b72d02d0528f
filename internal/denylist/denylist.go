// Package denylist filters out files that should never reach the chunking
// and indexing pipeline: binary assets, lock files, vendored/junk
// directories, and oversized blobs.
package denylist

import (
	"path/filepath"
	"strings"
)

// Dirs are path segments that mark junk/non-indexable trees. Matching is
// done against the path with a leading slash added, so a segment like
// "vendor/" matches anywhere in the path, not just at its root.
var Dirs = []string{
	"node_modules/",
	"dist/",
	"build/",
	".git/",
	"vendor/",
	"__pycache__/",
	".tox/",
	".venv/",
	".mypy_cache/",
}

// Extensions are glob patterns (matched against the basename only) for file
// types that should never be indexed.
var Extensions = []string{
	"*.lock",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.svg",
	"*.ico",
	"*.pdf",
	"*.woff",
	"*.woff2",
	"*.ttf",
	"*.eot",
	"*.mp3",
	"*.mp4",
	"*.zip",
	"*.tar.gz",
	"*.exe",
	"*.dll",
	"*.so",
	"*.dylib",
	"*.min.js",
	"*.min.css",
	"*.map",
}

// Files are exact basenames rejected regardless of their directory.
var Files = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"go.sum":            true,
	"composer.lock":     true,
}

// MaxFileSizeBytes is the size threshold above which a file is rejected,
// regardless of path or extension. Set once at startup, before any
// indexing runs.
var MaxFileSizeBytes int64 = 500_000

// IsDenied reports whether path should be excluded from indexing. sizeBytes
// is optional; pass nil when the size is not yet known (e.g. before the
// content has been fetched).
func IsDenied(path string, sizeBytes *int64) bool {
	normalised := "/" + path

	for _, dirPattern := range Dirs {
		if strings.Contains(normalised, "/"+dirPattern) {
			return true
		}
	}

	filename := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		filename = path[idx+1:]
	}

	for _, extPattern := range Extensions {
		if ok, _ := filepath.Match(extPattern, filename); ok {
			return true
		}
	}

	if Files[filename] {
		return true
	}

	return sizeBytes != nil && *sizeBytes > MaxFileSizeBytes
}
