// Package script loads transaction scripts: TOML files listing transactions
// to replay against a ReactiveModel, one [[transaction]] per commit.
//
//	name = "open and close an editor"
//
//	[[transaction]]
//	label = "open"
//	  [[transaction.op]]
//	  op = "put"
//	  path = "a/b/c/edt1"
//	  value = { title = "main.go", tags = ["editor"] }
//
//	[[transaction]]
//	label = "close"
//	  [[transaction.op]]
//	  op = "delete"
//	  path = "a/b/c/edt1"
//
// A transaction with fail = true applies its operations and then aborts,
// which exercises rollback.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/model"
)

// Operation names
const (
	OpPut    = "put"
	OpDelete = "delete"
	OpAppend = "append"
)

// ErrMarkedFailing aborts transactions declared with fail = true
var ErrMarkedFailing = errors.New("transaction marked to fail")

// Script is a parsed transaction script
type Script struct {
	Name         string        `toml:"name,omitempty"`
	Transactions []Transaction `toml:"transaction"`

	file string
}

// Transaction is one commit worth of operations
type Transaction struct {
	Label string `toml:"label,omitempty"`
	Fail  bool   `toml:"fail,omitempty"`
	Ops   []Op   `toml:"op"`
}

// Op is a single write
type Op struct {
	Op    string      `toml:"op"`
	Path  string      `toml:"path"`
	Value interface{} `toml:"value,omitempty"`

	path  model.Path
	value model.Model
}

// File returns the file the script was loaded from
func (s *Script) File() string { return s.file }

// Load reads and parses a script file
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rmerrors.NewScriptError(path, 0, "read", err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a script. file is used in error messages.
func Parse(data []byte, file string) (*Script, error) {
	var s Script
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, rmerrors.NewScriptError(file, 0, "parse", err)
	}
	s.file = file

	for i := range s.Transactions {
		tx := &s.Transactions[i]
		for j := range tx.Ops {
			if err := tx.Ops[j].compile(); err != nil {
				return nil, rmerrors.NewScriptError(file, i+1, fmt.Sprintf("op %d", j+1), err)
			}
		}
	}
	return &s, nil
}

func (op *Op) compile() error {
	p, err := model.ParsePath(op.Path)
	if err != nil {
		return err
	}
	op.path = p

	switch op.Op {
	case OpDelete:
		if op.Value != nil {
			return fmt.Errorf("delete takes no value")
		}
		op.value = model.Absent
		return nil
	case OpPut, OpAppend:
		if op.Value == nil {
			return fmt.Errorf("%s needs a value", op.Op)
		}
		v, err := model.FromGo(op.Value)
		if err != nil {
			return err
		}
		op.value = v
		return nil
	default:
		return fmt.Errorf("unknown op %q (want put, delete or append)", op.Op)
	}
}

// apply performs the operation on root
func (op *Op) apply(root model.Model) (model.Model, error) {
	switch op.Op {
	case OpAppend:
		var err error
		next := model.UpdateIn(root, op.path, func(cur model.Model) model.Model {
			switch l := cur.(type) {
			case *model.ListModel:
				return l.Append(op.value)
			case model.AbsentModel:
				return model.NewList(op.value)
			default:
				err = fmt.Errorf("append to %s: not a list (%s)", op.path, cur.Kind())
				return cur
			}
		})
		return next, err
	default:
		return model.PutIn(root, op.path, op.value), nil
	}
}

// Transform returns the transaction as a transform function
func (tx *Transaction) Transform() func(model.Model) (model.Model, error) {
	return func(root model.Model) (model.Model, error) {
		for i := range tx.Ops {
			next, err := tx.Ops[i].apply(root)
			if err != nil {
				return nil, err
			}
			root = next
		}
		if tx.Fail {
			return nil, ErrMarkedFailing
		}
		return root, nil
	}
}

// Encode renders the script back to TOML
func (s *Script) Encode() ([]byte, error) {
	return toml.Marshal(s)
}
