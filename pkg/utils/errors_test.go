package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("formats code, message and details", func(t *testing.T) {
		err := NewAppError(ErrCodeBudgetExceeded, "Milestone allocation exceeds contract total", "allocated 1200 > total 1000")
		assert.Equal(t, "BUDGET_EXCEEDED: Milestone allocation exceeds contract total (allocated 1200 > total 1000)", err.Error())
	})

	t.Run("context attaches without reformatting", func(t *testing.T) {
		index := uint64(3)
		err := NewAppError(ErrCodeInvalidTransition, "Milestone has no proof").
			WithContext("verifyMilestone", "contract-1", &index)

		assert.Equal(t, "verifyMilestone", err.Operation)
		assert.Equal(t, "contract-1", err.Contract)
		assert.Equal(t, uint64(3), *err.Milestone)
		assert.Equal(t, "INVALID_TRANSITION: Milestone has no proof", err.Error())
	})
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeUnauthorized, ErrorCode(NewAppError(ErrCodeUnauthorized, "x")))
	assert.Equal(t, ErrCodeInternal, ErrorCode(errors.New("plain error")))

	t.Run("unwraps wrapped errors", func(t *testing.T) {
		wrapped := fmt.Errorf("pipeline: %w", NewAppError(ErrCodeRejected, "refused"))
		assert.True(t, IsCode(wrapped, ErrCodeRejected))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAppError(ErrCodeTransport, "connection reset")))

	for _, code := range []string{
		ErrCodeUnauthorized, ErrCodeInvalidTransition, ErrCodeRejected,
		ErrCodeSignatureInvalid, ErrCodeBudgetExceeded, ErrCodePending,
	} {
		assert.False(t, IsRetryable(NewAppError(code, "x")), code)
	}
}
