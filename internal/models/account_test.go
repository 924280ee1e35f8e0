package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPasswordHistoryBoundsReuseWindow(t *testing.T) {
	account := &Account{}

	// Rotate through six passwords; only the current hash plus the last
	// four retained entries form the reuse window.
	for i, hash := range []string{"hash-0", "hash-1", "hash-2", "hash-3", "hash-4", "hash-5"} {
		account.PushPasswordHistory()
		account.PasswordHash = hash
		require.LessOrEqual(t, len(account.PasswordHistory), PasswordHistoryLimit, "rotation %d", i)
	}

	assert.Equal(t, "hash-5", account.PasswordHash)
	assert.Equal(t, []string{"hash-4", "hash-3", "hash-2", "hash-1"}, account.PasswordHistory)
	// The password from five changes ago has been evicted and is reusable.
	assert.NotContains(t, account.PasswordHistory, "hash-0")
}

func TestPushPasswordHistorySkipsEmptyHash(t *testing.T) {
	account := &Account{}
	account.PushPasswordHistory()
	assert.Empty(t, account.PasswordHistory)
}

func TestAccountIsLocked(t *testing.T) {
	now := time.Now()

	account := &Account{}
	assert.False(t, account.IsLocked(now))

	past := now.Add(-time.Minute)
	account.LockedUntil = &past
	assert.False(t, account.IsLocked(now))

	future := now.Add(time.Minute)
	account.LockedUntil = &future
	assert.True(t, account.IsLocked(now))
}
