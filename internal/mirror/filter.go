package mirror

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/rmodel/internal/config"
)

// filter decides which slash-separated paths, relative to the mirror root,
// are mirrored
type filter struct {
	include []string
	exclude []string
}

func newFilter(cfg config.Mirror, gitignore []string) *filter {
	exclude := make([]string, 0, len(cfg.Exclude)+len(gitignore))
	exclude = append(exclude, cfg.Exclude...)
	exclude = append(exclude, gitignore...)
	return &filter{
		include: cfg.Include,
		exclude: config.DeduplicatePatterns(exclude),
	}
}

// skipDir reports whether the directory rel and everything below it is excluded
func (f *filter) skipDir(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		// "dir/**" also names dir itself
		if base, ok := strings.CutSuffix(pattern, "/**"); ok {
			if matched, _ := doublestar.Match(base, rel); matched {
				return true
			}
		}
	}
	return false
}

// keepFile reports whether the file rel is mirrored. Files under an excluded
// directory are never kept; with no include patterns every other file is.
func (f *filter) keepFile(rel string) bool {
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}
	for dir := parentDir(rel); dir != ""; dir = parentDir(dir) {
		if f.skipDir(dir) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

func parentDir(rel string) string {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}
