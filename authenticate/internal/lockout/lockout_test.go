package lockout

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEvaluate(t *testing.T) {
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name          string
		cred          models.Credential
		attempt       string
		wantKind      Kind
		wantRemaining int
		wantFailures  *int
		wantLockedAt  *time.Time
	}{
		{
			name:         "correct secret resets failures",
			cred:         models.Credential{Secret: "pw", FailureCount: 2},
			attempt:      "pw",
			wantKind:     Success,
			wantFailures: intPtr(0),
		},
		{
			name:          "first failure",
			cred:          models.Credential{Secret: "pw"},
			attempt:       "nope",
			wantKind:      FailureBelowThreshold,
			wantRemaining: 2,
			wantFailures:  intPtr(1),
		},
		{
			name:          "second failure",
			cred:          models.Credential{Secret: "pw", FailureCount: 1},
			attempt:       "nope",
			wantKind:      FailureBelowThreshold,
			wantRemaining: 1,
			wantFailures:  intPtr(2),
		},
		{
			name:         "third failure locks",
			cred:         models.Credential{Secret: "pw", FailureCount: 2},
			attempt:      "nope",
			wantKind:     FailureLockout,
			wantFailures: intPtr(3),
			wantLockedAt: &now,
		},
		{
			name:         "count already past threshold still locks",
			cred:         models.Credential{Secret: "pw", FailureCount: 7},
			attempt:      "nope",
			wantKind:     FailureLockout,
			wantFailures: intPtr(8),
			wantLockedAt: &now,
		},
		{
			name:          "secret is case sensitive",
			cred:          models.Credential{Secret: "Admin123"},
			attempt:       "admin123",
			wantKind:      FailureBelowThreshold,
			wantFailures:  intPtr(1),
			wantRemaining: 2,
		},
		{
			name:          "secret is not trimmed",
			cred:          models.Credential{Secret: "pw"},
			attempt:       " pw",
			wantKind:      FailureBelowThreshold,
			wantFailures:  intPtr(1),
			wantRemaining: 2,
		},
		{
			name:         "locked account with correct secret",
			cred:         models.Credential{Secret: "pw", FailureCount: 3, LockedAt: &earlier},
			attempt:      "pw",
			wantKind:     AlreadyLocked,
			wantLockedAt: &earlier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.cred, tt.attempt, now)

			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.wantRemaining, d.Remaining)
			assert.Equal(t, tt.wantFailures, d.Mutation.FailureCount)
			if tt.wantLockedAt == nil {
				assert.Nil(t, d.LockedAt)
			} else {
				require.NotNil(t, d.LockedAt)
				assert.True(t, tt.wantLockedAt.Equal(*d.LockedAt))
			}
		})
	}
}

func TestEvaluate_AlreadyLockedHasNoMutation(t *testing.T) {
	lockedAt := now.Add(-time.Minute)
	d := Evaluate(models.Credential{Secret: "pw", FailureCount: 3, LockedAt: &lockedAt}, "wrong", now)

	assert.Equal(t, AlreadyLocked, d.Kind)
	assert.True(t, d.Mutation.Empty())
	assert.True(t, d.Locked())
	assert.False(t, d.Authenticated())
}

func TestEvaluate_DoesNotAliasInput(t *testing.T) {
	lockedAt := now.Add(-time.Minute)
	cred := models.Credential{LockedAt: &lockedAt}
	d := Evaluate(cred, "x", now)
	*d.LockedAt = now

	assert.True(t, cred.LockedAt.Equal(now.Add(-time.Minute)))
}

func TestMutation_Apply(t *testing.T) {
	cred := models.Credential{ID: 1, Username: "bob", Secret: "pw"}
	for i, want := range []int{2, 1} {
		d := Evaluate(cred, "x", now)
		require.Equal(t, FailureBelowThreshold, d.Kind, "attempt %d", i+1)
		assert.Equal(t, want, d.Remaining)
		cred = d.Mutation.Apply(cred)
	}

	d := Evaluate(cred, "x", now)
	require.Equal(t, FailureLockout, d.Kind)
	cred = d.Mutation.Apply(cred)
	assert.True(t, cred.IsLocked())
	assert.Equal(t, 3, cred.FailureCount)

	// Correct secret after lockout is still refused.
	assert.Equal(t, AlreadyLocked, Evaluate(cred, "pw", now).Kind)
}

// Random sequences of attempts: the account is locked exactly when the run of
// consecutive failures since the last success reaches the threshold.
func TestEvaluate_RandomSequences(t *testing.T) {
	gofakeit.Seed(0)

	for run := 0; run < 200; run++ {
		secret := gofakeit.Password(true, true, true, false, false, gofakeit.IntRange(1, 16))
		cred := models.Credential{ID: 1, Username: gofakeit.Username(), Secret: secret}
		streak := 0
		at := now

		for step := 0; step < 12; step++ {
			at = at.Add(time.Second)
			attempt := secret
			if !gofakeit.Bool() {
				attempt = secret + gofakeit.LetterN(1)
			}

			before := cred
			d := Evaluate(cred, attempt, at)
			cred = d.Mutation.Apply(cred)

			if before.IsLocked() {
				require.Equal(t, AlreadyLocked, d.Kind)
				require.Equal(t, before.FailureCount, cred.FailureCount)
				require.Equal(t, before.LastAttemptAt, cred.LastAttemptAt)
				continue
			}

			require.NotNil(t, cred.LastAttemptAt)
			require.True(t, cred.LastAttemptAt.Equal(at))
			if attempt == secret {
				streak = 0
				require.Equal(t, Success, d.Kind)
			} else {
				streak++
			}
			require.Equal(t, streak, cred.FailureCount)
			require.Equal(t, streak >= MaxFailedAttempts, cred.IsLocked(), "run %d step %d", run, step)
		}
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "already_locked", AlreadyLocked.String())
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "failure", FailureBelowThreshold.String())
	assert.Equal(t, "lockout", FailureLockout.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func intPtr(v int) *int { return &v }
