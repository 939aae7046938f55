package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionError(t *testing.T) {
	underlying := errors.New("bad transform")
	err := NewTransactionError("open-editor", 7, underlying)

	assert.Equal(t, ErrorTypeTransaction, err.Type)
	assert.Equal(t, uint64(7), err.Revision)
	assert.False(t, err.IsPanic())
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, `transaction "open-editor" aborted at revision 7: bad transform`, err.Error())

	unnamed := NewTransactionError("", 2, underlying)
	assert.Equal(t, "transaction aborted at revision 2: bad transform", unnamed.Error())
}

func TestTransactionPanic(t *testing.T) {
	err := NewTransactionPanic("", 3, "boom")

	assert.True(t, err.IsPanic())
	assert.Contains(t, err.Error(), "transform panicked: boom")

	var txErr *TransactionError
	require.True(t, errors.As(error(err), &txErr))
	assert.Equal(t, uint64(3), txErr.Revision)
}

func TestCleanupError(t *testing.T) {
	t.Run("nil when nothing failed", func(t *testing.T) {
		assert.Nil(t, NewCleanupError("root", nil))
		assert.Nil(t, NewCleanupError("root", []error{nil, nil}))
	})

	t.Run("collects failures", func(t *testing.T) {
		first := errors.New("first")
		second := errors.New("second")
		err := NewCleanupError("editor", []error{first, nil, second})
		require.NotNil(t, err)

		assert.Len(t, err.Errors(), 2)
		assert.True(t, errors.Is(err, first))
		assert.True(t, errors.Is(err, second))
		assert.Contains(t, err.Error(), "2 errors")
	})

	t.Run("single failure message", func(t *testing.T) {
		err := NewCleanupError("editor", []error{errors.New("only")})
		assert.Equal(t, "cleanup of lifetime editor failed: only", err.Error())
	})
}

func TestIndexMismatchError(t *testing.T) {
	err := NewIndexMismatchError("editors", []string{"a/b"}, nil)
	assert.Equal(t, ErrorTypeIndexMismatch, err.Type)
	assert.Contains(t, err.Error(), `index "editors"`)
	assert.Contains(t, err.Error(), "1 missing")
}

func TestScriptError(t *testing.T) {
	underlying := errors.New("unknown op")
	err := NewScriptError("steps.toml", 2, "parse", underlying)

	assert.Equal(t, "script steps.toml: transaction 2: parse: unknown op", err.Error())
	assert.True(t, errors.Is(err, underlying))

	fileLevel := NewScriptError("steps.toml", 0, "read", underlying)
	assert.Equal(t, "script steps.toml: read: unknown op", fileLevel.Error())
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("must be positive")
	err := NewConfigError("model.history_size", "-1", underlying)

	assert.Equal(t, "config error for field model.history_size (value -1): must be positive", err.Error())
	assert.True(t, errors.Is(err, underlying))
}
