package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

// runStoreContract exercises behaviour every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("provisions administrator once", func(t *testing.T) {
		repo := open(t)

		provisioned, err := repo.EnsureSchema(ctx)
		require.NoError(t, err)
		assert.True(t, provisioned)

		provisioned, err = repo.EnsureSchema(ctx)
		require.NoError(t, err)
		assert.False(t, provisioned)

		admin, err := repo.FindByUsername(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, AdminID, admin.ID)
		assert.Equal(t, "admin123", admin.Secret)
		assert.Equal(t, 0, admin.FailureCount)
		assert.Nil(t, admin.LockedAt)
		assert.Nil(t, admin.LastAttemptAt)
	})

	t.Run("concurrent provisioning inserts one record", func(t *testing.T) {
		repo := open(t)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			errs []error
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.EnsureSchema(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					wins++
				}
			}()
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 1, wins)
	})

	t.Run("find trims identity and is case sensitive", func(t *testing.T) {
		repo := open(t)
		_, err := repo.CreateCredential(ctx, "alice", "pw")
		require.NoError(t, err)

		c, err := repo.FindByUsername(ctx, "  alice\t")
		require.NoError(t, err)
		assert.Equal(t, "alice", c.Username)

		_, err = repo.FindByUsername(ctx, "Alice")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("create credential", func(t *testing.T) {
		repo := open(t)
		_, err := repo.EnsureSchema(ctx)
		require.NoError(t, err)

		bob, err := repo.CreateCredential(ctx, " bob ", "secret")
		require.NoError(t, err)
		assert.Greater(t, bob.ID, AdminID)
		assert.Equal(t, "bob", bob.Username)

		_, err = repo.CreateCredential(ctx, "bob", "other")
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("field updates", func(t *testing.T) {
		repo := open(t)
		c, err := repo.CreateCredential(ctx, "carol", "pw")
		require.NoError(t, err)

		at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		require.NoError(t, repo.UpdateFailureCount(ctx, c.ID, 2))
		require.NoError(t, repo.UpdateLastAttempt(ctx, c.ID, at))
		require.NoError(t, repo.UpdateLockState(ctx, c.ID, &at))

		got, err := repo.FindByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, 2, got.FailureCount)
		require.NotNil(t, got.LastAttemptAt)
		assert.True(t, at.Equal(*got.LastAttemptAt))
		require.NotNil(t, got.LockedAt)
		assert.True(t, at.Equal(*got.LockedAt))

		require.NoError(t, repo.UpdateLockState(ctx, c.ID, nil))
		got, err = repo.FindByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Nil(t, got.LockedAt)
		assert.Equal(t, 2, got.FailureCount, "clearing the lock leaves the count alone")
	})

	t.Run("updates of unknown id", func(t *testing.T) {
		repo := open(t)
		assert.ErrorIs(t, repo.UpdateFailureCount(ctx, 999, 1), ErrUserNotFound)
		assert.ErrorIs(t, repo.UpdateLastAttempt(ctx, 999, time.Now()), ErrUserNotFound)
		assert.ErrorIs(t, repo.UpdateLockState(ctx, 999, nil), ErrUserNotFound)
	})

	t.Run("audit empty", func(t *testing.T) {
		repo := open(t)
		entries, err := repo.RecentAudit(ctx, 100)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("audit ids increase and recent is newest first", func(t *testing.T) {
		repo := open(t)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		var lastID int64
		for i := 0; i < 5; i++ {
			e := &models.AuditEntry{
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Username:  fmt.Sprintf("user%d", i),
				Success:   i%2 == 0,
				IP:        "10.0.0.1",
			}
			require.NoError(t, repo.AppendAudit(ctx, e))
			assert.Greater(t, e.ID, lastID)
			lastID = e.ID
		}

		entries, err := repo.RecentAudit(ctx, 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "user4", entries[0].Username)
		assert.Equal(t, "user3", entries[1].Username)
		assert.Equal(t, "user2", entries[2].Username)
		assert.True(t, entries[0].Success)
		assert.True(t, base.Add(4*time.Minute).Equal(entries[0].Timestamp))
		assert.Equal(t, "10.0.0.1", entries[0].IP)
	})

	t.Run("concurrent appends get distinct ids", func(t *testing.T) {
		repo := open(t)
		var wg sync.WaitGroup
		ids := make([]int64, 20)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e := &models.AuditEntry{Timestamp: time.Now(), Username: "x"}
				if assert.NoError(t, repo.AppendAudit(ctx, e)) {
					ids[i] = e.ID
				}
			}(i)
		}
		wg.Wait()

		seen := map[int64]bool{}
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	})
}

func TestInMemoryRepository(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Repository {
		return NewInMemoryRepository(AdminSeed{})
	})
}

func TestInMemoryRepository_CustomAdmin(t *testing.T) {
	repo := NewInMemoryRepository(AdminSeed{Username: "root"})
	_, err := repo.EnsureSchema(context.Background())
	require.NoError(t, err)

	c, err := repo.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "admin123", c.Secret)
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(AdminSeed{})
	_, err := repo.EnsureSchema(ctx)
	require.NoError(t, err)

	c, err := repo.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	c.FailureCount = 99

	again, err := repo.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, again.FailureCount)
}
