package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/standardbeagle/rmodel/internal/index"
)

// FileName is the per-directory config file; a copy in the home directory
// serves as the global base
const FileName = ".rmodel.kdl"

const (
	DefaultModelName      = "rmodel"
	DefaultHistorySize    = 32
	DefaultMountPath      = "fs"
	DefaultDebounceMs     = 100
	DefaultMaxFileSize    = 1024 * 1024
	DefaultMaxTextSize    = 64 * 1024
	MaxAllowedFileSize    = 100 * 1024 * 1024
	MaxAllowedHistorySize = 100000
)

type Config struct {
	Version int
	Root    string // directory the project config was loaded from
	Model   Model
	Debug   Debug
	Tags    []Tag
	Mirror  Mirror
}

type Model struct {
	Name        string
	HistorySize int // snapshots kept by ReactiveModel.History
}

type Debug struct {
	Enabled bool
	LogFile string // empty: a file in the temp dir when enabled
}

// Tag is a named tag rule. A tag lists one or more matchers; Match selects
// whether a node needs all of them or any one.
type Tag struct {
	Name    string
	Markers []MarkerSpec
	Globs   []string
	Match   string // "any" (default) or "all"
}

// MarkerSpec tags map nodes whose Field list contains Value
type MarkerSpec struct {
	Field string
	Value string
}

// Rule builds the index rule for the tag
func (t Tag) Rule() (index.Rule, error) {
	var rules []index.Rule
	for _, m := range t.Markers {
		rules = append(rules, index.Marker(m.Field, m.Value))
	}
	for _, g := range t.Globs {
		r, err := index.NewGlobRule(g)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", t.Name, err)
		}
		rules = append(rules, r)
	}

	switch {
	case len(rules) == 0:
		return nil, fmt.Errorf("tag %q has no marker or glob", t.Name)
	case len(rules) == 1:
		return rules[0], nil
	case t.Match == "all":
		return index.AllOf(rules...), nil
	default:
		return index.AnyOf(rules...), nil
	}
}

// TagNames lists the configured tag names in declaration order
func (c *Config) TagNames() []string {
	names := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		names[i] = t.Name
	}
	return names
}

// FindTag returns the tag called name
func (c *Config) FindTag(name string) (Tag, bool) {
	for _, t := range c.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// Mirror configures the filesystem mirror adapter
type Mirror struct {
	Root             string   // directory to mirror
	Mount            string   // model path the tree is mounted under
	Include          []string // doublestar patterns; empty includes everything
	Exclude          []string
	DebounceMs       int
	MaxFileSize      int64 // larger files are skipped
	MaxTextSize      int64 // text content is stored for files up to this size
	RespectGitignore bool
	Workers          int // stat workers for the initial scan, 0 = auto
}

// Default returns the built-in configuration
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Root:    cwd,
		Model: Model{
			Name:        DefaultModelName,
			HistorySize: DefaultHistorySize,
		},
		Mirror: Mirror{
			Root:             cwd,
			Mount:            DefaultMountPath,
			Include:          []string{},
			Exclude:          defaultExclusions(),
			DebounceMs:       DefaultDebounceMs,
			MaxFileSize:      DefaultMaxFileSize,
			MaxTextSize:      DefaultMaxTextSize,
			RespectGitignore: true,
			Workers:          0,
		},
	}
}

func defaultExclusions() []string {
	return []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/*.swp",
		"**/*~",
	}
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads ~/.rmodel.kdl as a base and rootDir/.rmodel.kdl (or
// path's directory when rootDir is empty) on top of it. Missing files fall
// back to defaults.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	} else if path != "" {
		searchDir = path
	}

	// Step 1: global base config
	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: project config
	projectConfig, err := LoadKDL(searchDir)
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		cfg = baseConfig
		cfg.Root = searchDir
	default:
		cfg = Default()
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfigs merges a base config with a project config. The project wins
// for scalar settings; exclusions are combined, tags are combined with
// project tags replacing base tags of the same name.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Mirror.Exclude) > 0 {
		merged.Mirror.Exclude = DeduplicatePatterns(append(append([]string{}, base.Mirror.Exclude...), project.Mirror.Exclude...))
	}
	if len(project.Mirror.Include) == 0 && len(base.Mirror.Include) > 0 {
		merged.Mirror.Include = base.Mirror.Include
	}

	projectTags := make(map[string]bool, len(project.Tags))
	for _, t := range project.Tags {
		projectTags[t.Name] = true
	}
	merged.Tags = nil
	for _, t := range base.Tags {
		if !projectTags[t.Name] {
			merged.Tags = append(merged.Tags, t)
		}
	}
	merged.Tags = append(merged.Tags, project.Tags...)

	if !project.Debug.Enabled && base.Debug.Enabled {
		merged.Debug = base.Debug
	}
	return &merged
}

// DeduplicatePatterns removes repeated patterns keeping first occurrences
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// workerCount resolves Mirror.Workers, leaving one core for the committing goroutine
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return max(1, runtime.NumCPU()-1)
}
