package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Fallback base name when a title sanitizes to nothing
const (
	UntitledBaseName = "untitled"
)

var (
	nonWordChars   = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// SanitizeTitle derives a filesystem-safe base filename from a media title.
// Non-word characters are stripped and whitespace runs collapse to a single
// underscore.
func SanitizeTitle(title string) string {
	clean := nonWordChars.ReplaceAllString(title, "")
	clean = whitespaceRuns.ReplaceAllString(strings.TrimSpace(clean), "_")
	if clean == "" {
		return UntitledBaseName
	}
	return clean
}

// PathAllocator hands out collision-free output paths. Two jobs with the
// same sanitized title must never race on the same file, including before
// either file exists on disk, so claimed paths are tracked in memory in
// addition to the stat check.
type PathAllocator struct {
	mu      sync.Mutex
	claimed map[string]bool
}

// NewPathAllocator creates an empty allocator
func NewPathAllocator() *PathAllocator {
	return &PathAllocator{claimed: make(map[string]bool)}
}

// Allocate returns dir/base+ext, appending a numeric suffix on collision
// with an existing file or a previously allocated path
func (a *PathAllocator) Allocate(dir, base, ext string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidate := filepath.Join(dir, base+ext)
	for i := 1; a.taken(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	a.claimed[candidate] = true
	return candidate
}

// Release frees a claimed path after its job failed and the partial file
// was removed, so a retry may reuse the name
func (a *PathAllocator) Release(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.claimed, path)
}

func (a *PathAllocator) taken(path string) bool {
	if a.claimed[path] {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
