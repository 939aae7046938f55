// Package mirror keeps a directory tree mirrored into a ReactiveModel.
//
// Directories become maps keyed by entry name and regular files become maps
// holding size, mode, modification time and, for small text files, the
// content. The tree is mounted at a configurable model path. After an
// initial scan, file system events are debounced and every batch is
// committed as a single transaction, so tag signals over the mount see one
// consistent change per batch.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/rmodel/internal/config"
	"github.com/standardbeagle/rmodel/internal/debug"
	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/lifetime"
	"github.com/standardbeagle/rmodel/internal/model"
	"github.com/standardbeagle/rmodel/internal/reactive"
)

// Batch describes one committed group of file system changes
type Batch struct {
	Paths    []string // slash-separated, relative to the mirror root
	Snapshot *reactive.Snapshot
	Duration time.Duration
	Err      error
}

// Stats contains statistics about mirroring
type Stats struct {
	Root            string
	Mount           string
	EventsProcessed int64
	Batches         int64
	ErrorCount      int64
	LastBatchTime   time.Time
	IsActive        bool
}

// Mirror mirrors one directory into a model
type Mirror struct {
	m        *reactive.ReactiveModel
	cfg      config.Mirror
	root     string
	mount    model.Path
	filter   *filter
	workers  int
	debounce time.Duration

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	started bool

	onBatch func(Batch)

	eventsProcessed int64
	batches         int64
	errorCount      int64
	lastBatchTime   time.Time
	active          bool
	statsMu         sync.RWMutex
}

// New prepares a mirror of cfg.Root into m. Nothing is read until Sync or
// Start.
func New(m *reactive.ReactiveModel, cfg config.Mirror) (*Mirror, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("mirror root %s: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mirror root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror root %s is not a directory", root)
	}

	mount, err := model.ParsePath(cfg.Mount)
	if err != nil {
		return nil, rmerrors.NewConfigError("mirror.mount", cfg.Mount, err)
	}

	var ignored []string
	if cfg.RespectGitignore {
		gp := config.NewGitignoreParser()
		if err := gp.LoadGitignore(root); err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		ignored = gp.ExclusionPatterns()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	debounceMs := cfg.DebounceMs
	if debounceMs <= 0 {
		debounceMs = config.DefaultDebounceMs
	}

	return &Mirror{
		m:        m,
		cfg:      cfg,
		root:     root,
		mount:    mount,
		filter:   newFilter(cfg, ignored),
		workers:  workers,
		debounce: time.Duration(debounceMs) * time.Millisecond,
	}, nil
}

// Root returns the absolute directory being mirrored
func (mr *Mirror) Root() string { return mr.root }

// Mount returns the model path the tree is mounted under
func (mr *Mirror) Mount() model.Path { return mr.mount }

// OnBatch sets a callback invoked after every committed or failed batch.
// It must be set before Start.
func (mr *Mirror) OnBatch(fn func(Batch)) {
	mr.onBatch = fn
}

// Sync scans the whole tree and replaces the mount with it in one
// transaction
func (mr *Mirror) Sync(ctx context.Context) (*reactive.Snapshot, error) {
	snap, _, err := mr.sync(ctx)
	return snap, err
}

func (mr *Mirror) sync(ctx context.Context) (*reactive.Snapshot, []string, error) {
	tree, dirs, err := mr.scanTree(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", mr.root, err)
	}
	snap, err := mr.m.NamedTransaction("mirror sync "+mr.root, func(root model.Model) (model.Model, error) {
		return model.PutIn(root, mr.mount, tree), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, dirs, nil
}

// Start syncs the tree and then follows file system changes until lt
// terminates
func (mr *Mirror) Start(lt *lifetime.Lifetime) error {
	if mr.started {
		return errors.New("mirror already started")
	}
	if lt.IsTerminated() {
		return fmt.Errorf("mirror %s: lifetime %s already terminated", mr.root, lt.Name())
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	debug.LogMirror("starting mirror of %s at %s\n", mr.root, mr.mount)
	_, dirs, err := mr.sync(lt.Context())
	if err != nil {
		_ = watcher.Close()
		return err
	}

	mr.watcher = watcher
	mr.started = true
	mr.addWatches(dirs)

	mr.setActive(true)
	ctx, cancel := context.WithCancel(lt.Context())
	mr.wg.Add(1)
	go mr.processEvents(ctx)

	lt.OnTerminationFunc(func() {
		cancel()
		if err := mr.watcher.Close(); err != nil {
			debug.LogMirror("closing watcher: %v\n", err)
		}
		mr.wg.Wait()
		mr.setActive(false)
		debug.LogMirror("mirror of %s stopped\n", mr.root)
	})
	return nil
}

func (mr *Mirror) addWatches(dirs []string) {
	for _, d := range dirs {
		if err := mr.watcher.Add(mr.absolute(d)); err != nil {
			debug.LogMirror("failed to add watch for %s: %v\n", d, err)
		}
	}
}

// processEvents collects events into a pending set and flushes it once no
// event has arrived for the debounce interval
func (mr *Mirror) processEvents(ctx context.Context) {
	defer mr.wg.Done()

	timer := time.NewTimer(mr.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-mr.watcher.Events:
			if !ok {
				return
			}
			if rel, keep := mr.accept(event); keep {
				pending[rel] = struct{}{}
				timer.Reset(mr.debounce)
			}

		case err, ok := <-mr.watcher.Errors:
			if !ok {
				return
			}
			mr.incrementStats(0, 0, 1)
			debug.LogMirror("watcher error: %v\n", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			mr.flush(ctx, pending)
			pending = make(map[string]struct{})
		}
	}
}

// accept filters an event and returns the relative path to refresh
func (mr *Mirror) accept(event fsnotify.Event) (string, bool) {
	rel := mr.relative(event.Name)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if mr.filter.skipDir(rel) {
		return "", false
	}
	debug.LogMirror("event %v for %s\n", event.Op, rel)

	// New directories are watched right away; the flush rescans them so
	// entries created before the watch existed are not lost
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := mr.watcher.Add(event.Name); err != nil {
				debug.LogMirror("failed to add watch for new directory %s: %v\n", rel, err)
			}
		}
	}
	return rel, true
}

// edit is one subtree replacement inside the mount
type edit struct {
	path  model.Path
	value model.Model
}

// flush turns the pending paths into edits and commits them together
func (mr *Mirror) flush(ctx context.Context, pending map[string]struct{}) {
	started := time.Now()
	paths := coalesce(pending)

	edits := make([]edit, 0, len(paths))
	for _, rel := range paths {
		value, dirs := mr.current(ctx, rel)
		mr.addWatches(dirs)
		edits = append(edits, edit{path: mr.mount.Concat(relPath(rel)), value: value})
	}

	batch := Batch{Paths: paths}
	if mr.unchanged(edits) {
		debug.LogMirror("batch of %d paths changed nothing\n", len(paths))
	} else {
		batch.Snapshot, batch.Err = mr.m.NamedTransaction(fmt.Sprintf("mirror batch (%d paths)", len(paths)),
			func(root model.Model) (model.Model, error) {
				for _, e := range edits {
					root = model.PutIn(root, e.path, e.value)
				}
				return root, nil
			})
	}
	batch.Duration = time.Since(started)

	var errCount int64
	if batch.Err != nil {
		errCount = 1
		debug.LogMirror("batch of %d paths failed: %v\n", len(paths), batch.Err)
	}
	mr.incrementStats(int64(len(pending)), 1, errCount)

	if mr.onBatch != nil {
		mr.onBatch(batch)
	}
}

// current reads what the model should hold for rel right now: Absent for
// missing or excluded entries, a file node, or a rescanned directory
func (mr *Mirror) current(ctx context.Context, rel string) (model.Model, []string) {
	info, err := os.Lstat(mr.absolute(rel))
	if err != nil {
		return model.Absent, nil
	}
	switch {
	case info.IsDir():
		if mr.filter.skipDir(rel) {
			return model.Absent, nil
		}
		tree, dirs, err := mr.scanTree(ctx, rel)
		if err != nil {
			// keep what the model already holds
			debug.LogMirror("rescan of %s failed: %v\n", rel, err)
			return model.GetIn(mr.m.Root(), mr.mount.Concat(relPath(rel))), nil
		}
		return tree, dirs
	case info.Mode().IsRegular() && mr.filter.keepFile(rel):
		if node, ok := mr.loadFile(rel); ok {
			return node, nil
		}
	}
	return model.Absent, nil
}

func (mr *Mirror) unchanged(edits []edit) bool {
	root := mr.m.Root()
	for _, e := range edits {
		if !model.Equal(model.GetIn(root, e.path), e.value) {
			return false
		}
	}
	return true
}

// coalesce sorts the pending paths and drops those below another pending
// path, since refreshing a directory rescans everything under it
func coalesce(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := paths[:0]
	for _, p := range paths {
		covered := false
		for dir := parentDir(p); dir != ""; dir = parentDir(dir) {
			if _, ok := pending[dir]; ok {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// relative converts an absolute path to the slash-separated form used by the
// filter. The root itself is "".
func (mr *Mirror) relative(path string) string {
	rel, err := filepath.Rel(mr.root, path)
	if err != nil {
		return ".."
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return ""
	}
	return rel
}

func (mr *Mirror) absolute(rel string) string {
	return filepath.Join(mr.root, filepath.FromSlash(rel))
}

// relPath maps a relative file path to model keys, one per path element
func relPath(rel string) model.Path {
	if rel == "" {
		return model.Root
	}
	return model.NewPath(strings.Split(rel, "/")...)
}

func (mr *Mirror) setActive(active bool) {
	mr.statsMu.Lock()
	defer mr.statsMu.Unlock()
	mr.active = active
}

// incrementStats updates mirroring statistics
func (mr *Mirror) incrementStats(events, batches, errs int64) {
	mr.statsMu.Lock()
	defer mr.statsMu.Unlock()

	mr.eventsProcessed += events
	mr.batches += batches
	mr.errorCount += errs
	if batches > 0 {
		mr.lastBatchTime = time.Now()
	}
}

// Stats returns current mirroring statistics
func (mr *Mirror) Stats() Stats {
	mr.statsMu.RLock()
	defer mr.statsMu.RUnlock()

	return Stats{
		Root:            mr.root,
		Mount:           mr.mount.String(),
		EventsProcessed: mr.eventsProcessed,
		Batches:         mr.batches,
		ErrorCount:      mr.errorCount,
		LastBatchTime:   mr.lastBatchTime,
		IsActive:        mr.active,
	}
}
