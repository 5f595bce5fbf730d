package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/agentstation/enrollsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "record",
			ID:       "1234567890",
		}
		assert.Equal(t, "record with ID 1234567890 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("feed", "benefits")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "app_id",
			Message: "cannot be empty",
		}
		assert.Equal(t, "validation failed for field app_id: cannot be empty", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid configuration"}
		assert.Equal(t, "validation failed: invalid configuration", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestAPIError(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := pkgerrors.NewAPIError("3759", 520, "GAIA_IL23")
		assert.Contains(t, err.Error(), "3759")
		assert.Contains(t, err.Error(), "520")
		assert.True(t, pkgerrors.IsStoreUnavailable(err))
	})

	t.Run("rate limited", func(t *testing.T) {
		err := pkgerrors.NewAPIError("3777", 429, "too many requests")
		assert.True(t, pkgerrors.IsRateLimited(err))
		assert.False(t, pkgerrors.IsStoreUnavailable(err))
	})

	t.Run("wrapped", func(t *testing.T) {
		base := errors.New("connection reset")
		err := pkgerrors.WrapAPI("3744", 0, base)
		var apiErr *pkgerrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, base, apiErr.Unwrap())
		assert.NotContains(t, err.Error(), "status")
		assert.True(t, pkgerrors.IsStoreUnavailable(err))
		assert.False(t, pkgerrors.IsRateLimited(err))
	})
}

func TestIOError(t *testing.T) {
	t.Run("wrap helper", func(t *testing.T) {
		baseErr := errors.New("no such file")
		err := pkgerrors.WrapIO("locate", "src_money", baseErr)
		ioErr, ok := err.(*pkgerrors.IOError)
		require.True(t, ok)
		assert.Equal(t, "locate", ioErr.Operation)
		assert.Equal(t, "src_money", ioErr.Path)
		assert.Equal(t, baseErr, ioErr.Unwrap())
	})

	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapIO("read", "x", nil))
		assert.NoError(t, pkgerrors.WrapParse("csv", "x", nil))
		assert.NoError(t, pkgerrors.WrapResource("update", "record", "1", nil))
	})
}

func TestParseError(t *testing.T) {
	err := &pkgerrors.ParseError{Format: "csv", File: "benefits.txt", Line: 4, Column: 2, Message: "bare quote"}
	assert.Equal(t, "parse error in csv at benefits.txt:4:2: bare quote", err.Error())

	err = pkgerrors.NewParseError("yaml", "", "bad indent", nil)
	assert.Equal(t, "yaml parse error: bad indent", err.Error())
}

func TestJoinError(t *testing.T) {
	err := pkgerrors.NewJoinError("0042", 7)
	assert.Contains(t, err.Error(), "0042")
	assert.Contains(t, err.Error(), "row 7")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsBatchFatal(err))

	wrapped := fmt.Errorf("join: %w", err)
	var joinErr *pkgerrors.JoinError
	require.ErrorAs(t, wrapped, &joinErr)
	assert.Equal(t, "0042", joinErr.ParticipantCode)
}

func TestChunkError(t *testing.T) {
	base := pkgerrors.NewAPIError("3759", 400, "CB_VA01")
	err := pkgerrors.NewChunkError("create", "3759", 100, 50, base)
	assert.Contains(t, err.Error(), "records 100-149")
	assert.False(t, pkgerrors.IsBatchFatal(err))

	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestFatal(t *testing.T) {
	assert.NoError(t, pkgerrors.Fatal(nil))

	base := pkgerrors.NewIOError("locate", "src_inform", errors.New("no .txt file"))
	err := pkgerrors.Fatal(base)
	assert.True(t, pkgerrors.IsBatchFatal(err))
	assert.Equal(t, base.Error(), err.Error())

	var ioErr *pkgerrors.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestStdlibAliases(t *testing.T) {
	var target *pkgerrors.APIError
	wrapped := fmt.Errorf("outer: %w", pkgerrors.NewAPIError("12", 500, "boom"))
	assert.True(t, pkgerrors.As(wrapped, &target))
	assert.Equal(t, 500, target.StatusCode)
	assert.True(t, pkgerrors.Is(wrapped, pkgerrors.ErrStoreUnavailable))

	joined := pkgerrors.Join(pkgerrors.ErrNotFound, pkgerrors.ErrRateLimited)
	assert.True(t, pkgerrors.Is(joined, pkgerrors.ErrRateLimited))
}
