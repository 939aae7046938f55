package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// GitignorePattern is one parsed .gitignore line
type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool
}

// GitignoreParser turns .gitignore files into doublestar exclusion patterns
// for the mirror. Negations are not representable as exclusions and are
// dropped.
type GitignoreParser struct {
	patterns []GitignorePattern
}

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore loads root/.gitignore. A missing file is not an error.
func (gp *GitignoreParser) LoadGitignore(root string) error {
	file, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	return gp.Read(file)
}

// Read parses gitignore lines from r
func (gp *GitignoreParser) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern parses and adds a single line
func (gp *GitignoreParser) AddPattern(line string) {
	p := GitignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = line[1:]
	} else if strings.Contains(line, "/") {
		// a slash in the middle anchors the pattern like a leading one
		p.Absolute = true
	}
	if line == "" {
		return
	}
	p.Pattern = line
	gp.patterns = append(gp.patterns, p)
}

// Patterns returns the parsed lines
func (gp *GitignoreParser) Patterns() []GitignorePattern {
	return gp.patterns
}

// ExclusionPatterns converts the parsed lines to doublestar patterns
// relative to the gitignore's directory
func (gp *GitignoreParser) ExclusionPatterns() []string {
	var out []string
	for _, p := range gp.patterns {
		if p.Negate {
			continue
		}
		out = append(out, toDoublestar(p)...)
	}
	return DeduplicatePatterns(out)
}

func toDoublestar(p GitignorePattern) []string {
	base := p.Pattern
	if !p.Absolute && !strings.HasPrefix(base, "**/") {
		base = "**/" + base
	}
	if p.Directory {
		return []string{base + "/**"}
	}
	// a plain name matches files and directories of that name
	return []string{base, base + "/**"}
}
