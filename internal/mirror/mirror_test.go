package mirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/rmodel/internal/config"
	"github.com/standardbeagle/rmodel/internal/index"
	"github.com/standardbeagle/rmodel/internal/lifetime"
	"github.com/standardbeagle/rmodel/internal/model"
	"github.com/standardbeagle/rmodel/internal/reactive"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(root string) config.Mirror {
	return config.Mirror{
		Root:             root,
		Mount:            "fs",
		Exclude:          []string{"**/.git/**", "**/node_modules/**"},
		DebounceMs:       20,
		MaxFileSize:      1024,
		MaxTextSize:      64,
		RespectGitignore: true,
		Workers:          2,
	}
}

func newModel(t *testing.T) *reactive.ReactiveModel {
	t.Helper()
	m := reactive.New(reactive.WithName("mirror-test"))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func get(m *reactive.ReactiveModel, path string) model.Model {
	return m.Get(model.MustParsePath(path))
}

func TestSync_BuildsTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/main.go", "package a\n")
	writeFile(t, root, "a/logo.png", "not really a png")
	writeFile(t, root, "big.txt", strings.Repeat("x", 2048))
	writeFile(t, root, "medium.txt", strings.Repeat("y", 100))
	writeFile(t, root, ".git/config", "[core]")
	writeFile(t, root, "node_modules/pkg/index.js", "")
	writeFile(t, root, "app.log", "log line")
	writeFile(t, root, ".gitignore", "*.log\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "empty"), 0o755))

	m := newModel(t)
	mr, err := New(m, testConfig(root))
	require.NoError(t, err)

	snap, err := mr.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Revision)

	assert.Equal(t, model.String("package a\n"), get(m, "fs/a/main.go/text"))
	assert.Equal(t, model.Int(10), get(m, "fs/a/main.go/size"))
	assert.Equal(t, model.KindPrimitive, get(m, "fs/a/main.go/modified").Kind())

	assert.Equal(t, model.KindMap, get(m, "fs/a/logo.png").Kind())
	assert.True(t, model.IsAbsent(get(m, "fs/a/logo.png/text")), "binary extensions carry no text")

	assert.True(t, model.IsAbsent(get(m, "fs/medium.txt/text")), "text above max_text_size is dropped")
	assert.Equal(t, model.Int(100), get(m, "fs/medium.txt/size"))

	assert.True(t, model.IsAbsent(get(m, "fs/big.txt")), "files above max_file_size are skipped")
	assert.True(t, model.IsAbsent(get(m, "fs/.git")))
	assert.True(t, model.IsAbsent(get(m, "fs/node_modules")))
	assert.True(t, model.IsAbsent(get(m, "fs/app.log")), ".gitignore is respected")

	assert.Equal(t, model.EmptyMap(), get(m, "fs/a/empty"))
}

func TestSync_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cmd/main.go", "package main")
	writeFile(t, root, "cmd/README.md", "# cmd")

	cfg := testConfig(root)
	cfg.Include = []string{"**/*.go"}
	m := newModel(t)
	mr, err := New(m, cfg)
	require.NoError(t, err)
	_, err = mr.Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, model.IsAbsent(get(m, "fs/cmd/main.go")))
	assert.True(t, model.IsAbsent(get(m, "fs/cmd/README.md")))
}

func TestNew_Errors(t *testing.T) {
	m := newModel(t)

	_, err := New(m, testConfig(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(m, testConfig(file))
	assert.Error(t, err)

	cfg := testConfig(t.TempDir())
	cfg.Mount = "fs/[x]"
	_, err = New(m, cfg)
	assert.Error(t, err)
}

func TestStart_FollowsChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package src")

	m := newModel(t)
	mr, err := New(m, testConfig(root))
	require.NoError(t, err)

	var mu sync.Mutex
	var batches []Batch
	mr.OnBatch(func(b Batch) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	})

	lt := lifetime.New("mirror")
	require.NoError(t, mr.Start(lt))
	assert.True(t, mr.Stats().IsActive)

	goFiles := reactive.Subscribe(m, lt, "go", index.GlobRule{Pattern: "fs/**/*.go"})
	require.Equal(t, 1, goFiles.Value().Len())

	writeFile(t, root, "src/b.go", "package src")
	require.Eventually(t, func() bool {
		return goFiles.Value().Contains(model.MustParsePath("fs/src/b.go"))
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, root, "src/a.go", "package src // edited")
	require.Eventually(t, func() bool {
		return model.Equal(model.String("package src // edited"), get(m, "fs/src/a.go/text"))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "b.go")))
	require.Eventually(t, func() bool {
		return model.IsAbsent(get(m, "fs/src/b.go"))
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, root, "pkg/deep/c.go", "package deep")
	require.Eventually(t, func() bool {
		return !model.IsAbsent(get(m, "fs/pkg/deep/c.go"))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, lt.Terminate())
	stats := mr.Stats()
	assert.False(t, stats.IsActive)
	assert.Positive(t, stats.Batches)
	assert.Zero(t, stats.ErrorCount)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	for _, b := range batches {
		assert.NoError(t, b.Err)
		assert.NotEmpty(t, b.Paths)
	}
}

func TestStart_TerminatedLifetime(t *testing.T) {
	m := newModel(t)
	mr, err := New(m, testConfig(t.TempDir()))
	require.NoError(t, err)

	lt := lifetime.New("done")
	require.NoError(t, lt.Terminate())
	assert.Error(t, mr.Start(lt))
	assert.False(t, mr.Stats().IsActive)
}

func TestStart_Twice(t *testing.T) {
	m := newModel(t)
	mr, err := New(m, testConfig(t.TempDir()))
	require.NoError(t, err)

	lt := lifetime.New("twice")
	defer func() { _ = lt.Terminate() }()
	require.NoError(t, mr.Start(lt))
	assert.Error(t, mr.Start(lt))
}

func TestCoalesce(t *testing.T) {
	pending := map[string]struct{}{
		"a":       {},
		"a/b/c":   {},
		"a/x":     {},
		"ab/file": {},
		"z/y":     {},
	}
	assert.Equal(t, []string{"a", "ab/file", "z/y"}, coalesce(pending))
}

func TestFilter(t *testing.T) {
	f := newFilter(config.Mirror{
		Include: []string{"**/*.go"},
		Exclude: []string{"**/vendor/**", "**/*_gen.go"},
	}, []string{"**/build/**"})

	assert.True(t, f.skipDir("vendor"))
	assert.True(t, f.skipDir("a/vendor"))
	assert.True(t, f.skipDir("a/build"))
	assert.False(t, f.skipDir("a/src"))

	assert.True(t, f.keepFile("main.go"))
	assert.True(t, f.keepFile("a/b/main.go"))
	assert.False(t, f.keepFile("a/vendor/lib.go"))
	assert.False(t, f.keepFile("api_gen.go"))
	assert.False(t, f.keepFile("README.md"))
}
