package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessellate-ai/loom"
)

func TestAcquireLockRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")
	b := createTestSession(t, s, "b", "/p")

	// Write lock excludes any other-session lock.
	lock, conflicting, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Empty(t, conflicting)

	_, conflicting, err = s.AcquireLock(ctx, b.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, a.ID, conflicting)

	_, conflicting, err = s.AcquireLock(ctx, b.ID, "/p/x.ts", loom.LockRead, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, a.ID, conflicting)

	// Read locks on different sessions coexist.
	readA, conflicting, err := s.AcquireLock(ctx, a.ID, "/p/y.ts", loom.LockRead, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, readA)
	assert.Empty(t, conflicting)

	readB, conflicting, err := s.AcquireLock(ctx, b.ID, "/p/y.ts", loom.LockRead, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, readB)
	assert.Empty(t, conflicting)

	// A live read lock by another session excludes a write lock.
	_, conflicting, err = s.AcquireLock(ctx, b.ID, "/p/y.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, a.ID, conflicting)
}

func TestAcquireLockSameSessionReacquire(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")

	first, conflicting, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, conflicting)

	second, conflicting, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, conflicting)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAcquireLockPurgesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")
	b := createTestSession(t, s, "b", "/p")

	_, _, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, -time.Second)
	require.NoError(t, err)

	// The expired lock is semantically absent.
	lock, conflicting, err := s.AcquireLock(ctx, b.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Empty(t, conflicting)
}

func TestReleaseLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")
	b := createTestSession(t, s, "b", "/p")

	lock, _, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseLock(ctx, lock.ID, a.ID))

	// acquire -> release -> acquire by another session succeeds.
	next, conflicting, err := s.AcquireLock(ctx, b.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Empty(t, conflicting)

	// Releasing an already purged lock is a no-op.
	require.NoError(t, s.ReleaseLock(ctx, lock.ID, a.ID))
}

func TestReleaseAllLocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")

	_, _, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	_, _, err = s.AcquireLock(ctx, a.ID, "/p/y.ts", loom.LockRead, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseAllLocks(ctx, a.ID))
	locks, err := s.ListLiveLocks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestListLiveLocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestSession(t, s, "a", "/p")

	_, _, err := s.AcquireLock(ctx, a.ID, "/p/x.ts", loom.LockWrite, time.Minute)
	require.NoError(t, err)
	_, _, err = s.AcquireLock(ctx, a.ID, "/p/y.ts", loom.LockRead, time.Minute)
	require.NoError(t, err)

	all, err := s.ListLiveLocks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := s.ListLiveLocks(ctx, "/p/x.ts")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, loom.LockWrite, one[0].Kind)
	assert.True(t, one[0].Live(time.Now().UTC()))
}
