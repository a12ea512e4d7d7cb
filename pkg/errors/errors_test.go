package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrUserNotFound, "no existe el usuario 42")
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.False(t, errors.Is(err, ErrIncidentNotFound))
	assert.Equal(t, "no existe el usuario 42", err.Message)
	assert.Equal(t, "usuario no encontrado", ErrUserNotFound.Message)
}

func TestWrapUnwraps(t *testing.T) {
	err := Wrap(sql.ErrConnDone, ErrStorage.Code, ErrStorage.Status, "fallo")
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "fallo")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("create incident: %w", ErrCapacity)
	assert.Equal(t, "CAPACITY_EXCEEDED", FromError(wrapped).Code)

	generic := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, generic.Code)
	assert.Equal(t, ErrInternal.Message, generic.Message)
}
