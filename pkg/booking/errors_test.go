package booking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code string
		is   error
	}{
		{"participant", notFound(EntityParticipant, "p1"), "PARTICIPANT_NOT_FOUND", ErrNotFound},
		{"table", notFound(EntityTable, ""), "TABLE_NOT_FOUND", ErrNotFound},
		{"category", conflict(ReasonCategoryTaken, "taken"), "CATEGORY_TAKEN", ErrConflict},
		{"paired", conflict(ReasonAlreadyPaired, "paired"), "ALREADY_PAIRED", ErrConflict},
		{"storage", storageFailure(errors.New("boom")), "STORAGE_FAILURE", ErrStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code())
			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.is)
			got, ok := AsError(wrapped)
			assert.True(t, ok)
			assert.Same(t, tt.err, got)
		})
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := storageFailure(cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, `Table "t9" not found`, notFound(EntityTable, "t9").Message)
}
