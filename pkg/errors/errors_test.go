package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError tests the basic creation of errors.
func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "ValidationFailed",
			code:    ValidationFailed,
			message: "validation failed",
		},
		{
			name:    "ResourceNotFound",
			code:    ResourceNotFound,
			message: "resource not found",
		},
		{
			name:    "InvalidState",
			code:    InvalidState,
			message: "operation not permitted in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)

			assert.True(t, ok, "should be a custom *Error")
			// Test that error was created correctly
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())

			// Test nil original error for new errors
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

// TestWrapError tests error wrapping functionality.
func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("original error")

	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		wrapMsg    string
		expectNil  bool
		expectCode ErrorCode
	}{
		{
			name:       "Wrap normal error",
			err:        originalErr,
			code:       ValidationFailed,
			wrapMsg:    "validation context",
			expectNil:  false,
			expectCode: ValidationFailed,
		},
		{
			name:      "Wrap nil error",
			err:       nil,
			code:      ValidationFailed,
			wrapMsg:   "validation context",
			expectNil: true,
		},
		{
			name:       "Wrap custom error",
			err:        New(ResourceNotFound, "not found"),
			code:       StorageUnavailable,
			wrapMsg:    "storage context",
			expectNil:  false,
			expectCode: StorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(tt.err, tt.code, tt.wrapMsg)

			if tt.expectNil {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			customErr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, tt.expectCode, customErr.Code())
			assert.Equal(t, tt.err, customErr.Unwrap())
		})
	}
}

func TestWithFields(t *testing.T) {
	err := New(InvalidState, "cannot start")
	err = WithFields(err, Fields{"test_id": "t-1", "status": "running"})

	customErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, InvalidState, customErr.Code())
	assert.Equal(t, "t-1", customErr.Fields()["test_id"])
	assert.Contains(t, err.Error(), "cannot start")

	// Foreign errors are adopted with code Unknown.
	foreign := WithFields(stderrors.New("boom"), Fields{"k": "v"})
	foreignErr, ok := foreign.(*Error)
	require.True(t, ok)
	assert.Equal(t, Unknown, foreignErr.Code())
}

func TestErrorIs(t *testing.T) {
	err := Wrap(New(StorageUnavailable, "append failed"), StorageUnavailable, "record")
	assert.True(t, stderrors.Is(err, New(StorageUnavailable, "")))
	assert.False(t, stderrors.Is(err, New(ValidationFailed, "")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ResourceNotFound, CodeOf(New(ResourceNotFound, "missing")))
	assert.Equal(t, Unknown, CodeOf(stderrors.New("plain")))

	wrapped := Wrap(New(Timeout, "deadline"), StorageUnavailable, "save")
	assert.Equal(t, StorageUnavailable, CodeOf(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(StorageUnavailable, "db down")))
	assert.True(t, IsRetryable(New(Timeout, "deadline exceeded")))
	assert.False(t, IsRetryable(New(ValidationFailed, "bad split")))
	assert.False(t, IsRetryable(New(InvalidState, "not running")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestCheckContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, CheckContext(ctx, "analyze"))

	cancel()
	err := CheckContext(ctx, "analyze")
	require.Error(t, err)
	assert.Equal(t, Canceled, CodeOf(err))
}
