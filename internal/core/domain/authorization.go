package domain

import (
	"fmt"
	"time"
)

// AttemptState is a step in the authorization state machine.
type AttemptState string

// Authorization attempt states.
const (
	AttemptStarted          AttemptState = "started"
	AttemptChallengeIssued  AttemptState = "challenge_issued"
	AttemptCallbackReceived AttemptState = "callback_received"
	AttemptAccountValidated AttemptState = "account_validated"
	AttemptCompleted        AttemptState = "completed"
	AttemptAborted          AttemptState = "aborted"
)

// IsTerminal returns true for Completed and Aborted.
func (s AttemptState) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptAborted
}

var attemptTransitions = map[AttemptState]AttemptState{
	AttemptStarted:          AttemptChallengeIssued,
	AttemptChallengeIssued:  AttemptCallbackReceived,
	AttemptCallbackReceived: AttemptAccountValidated,
	AttemptAccountValidated: AttemptCompleted,
}

// AuthAttempt is one in-flight interactive authorization.
// The verifier and state token belong to this attempt only.
type AuthAttempt struct {
	ID          string
	State       AttemptState
	Verifier    string
	Challenge   string
	StateToken  string
	RedirectURI string
	CreatedAt   time.Time
	ExpiresAt   time.Time

	// AccountID and Email are set once the account is validated.
	AccountID string
	Email     string

	// AbortReason is set when State is Aborted.
	AbortReason string
}

// Advance moves the attempt to the next state in the happy path.
func (a *AuthAttempt) Advance(to AttemptState) error {
	if a.State.IsTerminal() {
		return fmt.Errorf("%w: attempt already %s", ErrValidation, a.State)
	}
	if next, ok := attemptTransitions[a.State]; !ok || next != to {
		return fmt.Errorf("%w: cannot move attempt from %s to %s", ErrValidation, a.State, to)
	}
	a.State = to
	return nil
}

// Abort moves a non-terminal attempt to Aborted.
func (a *AuthAttempt) Abort(reason string) {
	if a.State.IsTerminal() {
		return
	}
	a.State = AttemptAborted
	a.AbortReason = reason
}

// Expired reports whether the attempt is past its deadline.
func (a *AuthAttempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
