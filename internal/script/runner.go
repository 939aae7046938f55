package script

import (
	"errors"
	"fmt"

	"github.com/standardbeagle/rmodel/internal/debug"
	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/reactive"
)

// Result is the outcome of one scripted transaction
type Result struct {
	Step     int // 1-based
	Label    string
	Snapshot *reactive.Snapshot // nil when aborted
	Err      error
	Expected bool // outcome matched the script's fail flag
}

// Committed reports whether the transaction committed
func (r Result) Committed() bool { return r.Err == nil }

// Apply runs every transaction of s through m in order. Aborted
// transactions do not stop the replay. The returned error is a
// *errors.ScriptError for the first transaction whose outcome differed from
// the script's expectation.
func (s *Script) Apply(m *reactive.ReactiveModel) ([]Result, error) {
	results := make([]Result, 0, len(s.Transactions))
	var firstUnexpected error

	for i := range s.Transactions {
		tx := &s.Transactions[i]
		label := tx.Label
		if label == "" {
			label = fmt.Sprintf("%s#%d", s.file, i+1)
		}

		snap, err := m.NamedTransaction(label, tx.Transform())
		if errors.Is(err, rmerrors.ErrModelClosed) {
			return results, rmerrors.NewScriptError(s.file, i+1, "apply", err)
		}

		res := Result{Step: i + 1, Label: label, Snapshot: snap, Err: err}
		if tx.Fail {
			res.Expected = errors.Is(err, ErrMarkedFailing)
		} else {
			res.Expected = err == nil
		}
		results = append(results, res)

		if !res.Expected && firstUnexpected == nil {
			op := "commit"
			if tx.Fail {
				op = "expected abort"
			}
			cause := err
			if cause == nil {
				cause = errors.New("transaction committed")
			}
			firstUnexpected = rmerrors.NewScriptError(s.file, i+1, op, cause)
		}
		debug.LogTransaction("script %s: step %d %q committed=%v expected=%v\n", s.file, i+1, label, err == nil, res.Expected)
	}
	return results, firstUnexpected
}
