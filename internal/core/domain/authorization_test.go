package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthAttempt_HappyPath(t *testing.T) {
	a := &AuthAttempt{State: AttemptStarted}

	for _, next := range []AttemptState{
		AttemptChallengeIssued,
		AttemptCallbackReceived,
		AttemptAccountValidated,
		AttemptCompleted,
	} {
		require.NoError(t, a.Advance(next))
		assert.Equal(t, next, a.State)
	}
	assert.True(t, a.State.IsTerminal())
}

func TestAuthAttempt_RejectsSkippedState(t *testing.T) {
	a := &AuthAttempt{State: AttemptStarted}
	err := a.Advance(AttemptCompleted)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, AttemptStarted, a.State)
}

func TestAuthAttempt_Abort(t *testing.T) {
	a := &AuthAttempt{State: AttemptCallbackReceived}
	a.Abort("not allowed")
	assert.Equal(t, AttemptAborted, a.State)
	assert.Equal(t, "not allowed", a.AbortReason)

	// Aborted is terminal.
	assert.ErrorIs(t, a.Advance(AttemptAccountValidated), ErrValidation)

	done := &AuthAttempt{State: AttemptCompleted}
	done.Abort("late")
	assert.Equal(t, AttemptCompleted, done.State)
	assert.Empty(t, done.AbortReason)
}

func TestAuthAttempt_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&AuthAttempt{}).Expired(now))
	assert.False(t, (&AuthAttempt{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&AuthAttempt{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}
