package index

import (
	"sort"

	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/model"
)

// FullScan evaluates rule on every node of root and returns the matches
// ordered by path. It is the reference the incremental index must agree with.
func FullScan(rule Rule, root model.Model) []Member {
	var out []Member
	walk(model.Root, root, func(p model.Path, n model.Model) {
		if rule.Match(p, n) {
			out = append(out, Member{Path: p, Node: n})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Compare(out[j].Path) < 0 })
	return out
}

// Verify compares idx against a full scan of root. It returns an
// *errors.IndexMismatchError listing missing and stale member paths, or nil.
func Verify(idx *TagIndex, root model.Model) error {
	expected := make(map[string]model.Path)
	for _, m := range FullScan(idx.rule, root) {
		expected[m.Path.ID()] = m.Path
	}

	var missing, stale []string
	for id, p := range expected {
		if _, ok := idx.members[id]; !ok {
			missing = append(missing, p.String())
		}
	}
	for id, m := range idx.members {
		if _, ok := expected[id]; !ok {
			stale = append(stale, m.Path.String())
			continue
		}
		if !model.Equal(m.Node, model.GetIn(root, m.Path)) {
			stale = append(stale, m.Path.String())
		}
	}
	if len(missing) == 0 && len(stale) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(stale)
	return rmerrors.NewIndexMismatchError(idx.rule.Name(), missing, stale)
}
