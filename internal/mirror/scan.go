package mirror

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/model"
)

// scanned is one mirrored file
type scanned struct {
	rel  string
	node model.Model
}

// scanTree walks the directory dir (relative to the mirror root, "" for the
// root itself) and returns its model subtree together with the directories
// found, for watch registration. File nodes are built by a bounded pool of
// workers; the tree is assembled once they finish.
func (mr *Mirror) scanTree(ctx context.Context, dir string) (model.Model, []string, error) {
	var dirs []string
	var files []string

	start := filepath.Join(mr.root, filepath.FromSlash(dir))
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped
			debug.LogMirror("scan: skipping %s: %v\n", path, err)
			if d != nil && d.IsDir() && path != start {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel := mr.relative(path)
		switch {
		case d.IsDir():
			if path != start && mr.filter.skipDir(rel) {
				return filepath.SkipDir
			}
			dirs = append(dirs, rel)
		case d.Type().IsRegular():
			if mr.filter.keepFile(rel) {
				files = append(files, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	results := make([]scanned, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mr.workers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			node, ok := mr.loadFile(rel)
			if ok {
				results[i] = scanned{rel: rel, node: node}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Directories first, shallowest first, so empty directories still
	// appear as empty maps
	sort.Strings(dirs)
	var tree model.Model = model.EmptyMap()
	for _, d := range dirs {
		if p := subpath(dir, d); !p.IsRoot() {
			tree = model.PutIn(tree, p, model.EmptyMap())
		}
	}
	for _, r := range results {
		if r.node != nil {
			tree = model.PutIn(tree, subpath(dir, r.rel), r.node)
		}
	}

	debug.LogMirror("scan %q: %d directories, %d files\n", dir, len(dirs), len(files))
	return tree, dirs, nil
}

// loadFile stats and reads one file. Files that vanished or exceed the size
// limit are reported as not present.
func (mr *Mirror) loadFile(rel string) (model.Model, bool) {
	path := mr.absolute(rel)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	if mr.cfg.MaxFileSize > 0 && info.Size() > mr.cfg.MaxFileSize {
		debug.LogMirror("skipping oversized file %s (%d bytes > %d limit)\n", rel, info.Size(), mr.cfg.MaxFileSize)
		return nil, false
	}
	return fileNode(path, info, mr.cfg.MaxTextSize), true
}

// subpath is the path of rel inside the subtree rooted at dir
func subpath(dir, rel string) model.Path {
	return pathSuffix(relPath(rel), relPath(dir).Len())
}

func pathSuffix(p model.Path, from int) model.Path {
	segs := p.Segments()
	if from >= len(segs) {
		return model.Root
	}
	return model.PathOf(segs[from:]...)
}
