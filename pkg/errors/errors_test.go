package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatchesSentinelByCode(t *testing.T) {
	err := InvalidPathError("not a path", "invalid relative reference")

	assert.True(t, stderrors.Is(err, ErrInvalidPath))
	assert.False(t, stderrors.Is(err, ErrInvalidOperation))

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrInvalidPath))
	assert.True(t, HasCode(wrapped, CodeInvalidPath))
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := TransportError("put", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, ErrTransientTransport))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAppErrorToMap(t *testing.T) {
	err := RemoteError("patch", 401, "Permission denied")

	fields := err.ToMap()
	assert.Equal(t, CodeRemoteRejected, fields["error_code"])
	assert.Equal(t, "firebase", fields["error_component"])
	assert.Equal(t, 401, fields["error_meta_status"])
	assert.Equal(t, "Permission denied", fields["error_meta_body"])
}

func TestSetupErrorIsCritical(t *testing.T) {
	err := SetupError("parse_url", "missing scheme")
	assert.True(t, err.IsCritical())
	assert.True(t, stderrors.Is(err, ErrSetupFailure))

	_, ok := AsAppError(stderrors.New("plain"))
	assert.False(t, ok)
}
