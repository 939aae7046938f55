package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigs_ExclusionsMerge(t *testing.T) {
	base := &Config{Mirror: Mirror{Exclude: []string{"**/node_modules/**", "**/vendor/**"}}}
	project := &Config{Mirror: Mirror{Exclude: []string{"**/dist/**", "**/vendor/**"}}}

	merged := mergeConfigs(base, project)
	assert.Equal(t, []string{"**/node_modules/**", "**/vendor/**", "**/dist/**"}, merged.Mirror.Exclude)
	assert.Equal(t, []string{"**/dist/**", "**/vendor/**"}, project.Mirror.Exclude, "inputs are not modified")
}

func TestMergeConfigs_IncludeFallsBackToBase(t *testing.T) {
	base := &Config{Mirror: Mirror{Include: []string{"**/*.go"}}}

	merged := mergeConfigs(base, &Config{})
	assert.Equal(t, []string{"**/*.go"}, merged.Mirror.Include)

	merged = mergeConfigs(base, &Config{Mirror: Mirror{Include: []string{"**/*.md"}}})
	assert.Equal(t, []string{"**/*.md"}, merged.Mirror.Include)
}

func TestMergeConfigs_TagsByName(t *testing.T) {
	base := &Config{Tags: []Tag{
		{Name: "editors", Globs: []string{"base/**"}},
		{Name: "docs", Globs: []string{"**/*.md"}},
	}}
	project := &Config{
		Model: Model{Name: "project"},
		Tags:  []Tag{{Name: "editors", Globs: []string{"project/**"}}},
	}

	merged := mergeConfigs(base, project)
	assert.Equal(t, "project", merged.Model.Name)
	require.Len(t, merged.Tags, 2)
	assert.Equal(t, "docs", merged.Tags[0].Name)
	assert.Equal(t, []string{"project/**"}, merged.Tags[1].Globs)

	tag, ok := merged.FindTag("editors")
	require.True(t, ok)
	assert.Equal(t, []string{"project/**"}, tag.Globs)
	_, ok = merged.FindTag("missing")
	assert.False(t, ok)
}

func TestMergeConfigs_DebugFromBase(t *testing.T) {
	base := &Config{Debug: Debug{Enabled: true, LogFile: "/tmp/base.log"}}
	merged := mergeConfigs(base, &Config{})
	assert.True(t, merged.Debug.Enabled)
	assert.Equal(t, "/tmp/base.log", merged.Debug.LogFile)
}

func TestLoadWithRoot_Layering(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(`
model { history_size 64 }
tags { tag "docs" { glob "**/*.md" } }
mirror { exclude "**/big/**" }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(project, FileName), []byte(`
model { name "proj" }
tags { tag "editors" { marker "tags" "editor" } }
`), 0o644))

	cfg, err := LoadWithRoot("", project)
	require.NoError(t, err)

	assert.Equal(t, "proj", cfg.Model.Name)
	// scalar settings come from the project file, which keeps its own default
	assert.Equal(t, DefaultHistorySize, cfg.Model.HistorySize)
	assert.Equal(t, []string{"docs", "editors"}, cfg.TagNames())
	assert.Contains(t, cfg.Mirror.Exclude, "**/big/**")
	assert.Contains(t, cfg.Mirror.Exclude, "**/.git/**")
	assert.Equal(t, project, cfg.Mirror.Root)
	assert.Equal(t, "any", cfg.Tags[0].Match)
	assert.Positive(t, cfg.Mirror.Workers)
}

func TestLoadWithRoot_NoFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadWithRoot("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultModelName, cfg.Model.Name)
	assert.Empty(t, cfg.Tags)
}

func TestLoadWithRoot_InvalidProject(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, FileName), []byte(`model { history_size -1 }`), 0o644))

	_, err := LoadWithRoot("", project)
	assert.Error(t, err)
}

func TestDeduplicatePatterns(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, DeduplicatePatterns([]string{"a", "b", "a"}))
	assert.Empty(t, DeduplicatePatterns(nil))
}
