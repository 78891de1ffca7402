package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
)

func newRepo(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionRepository(client, time.Hour), mr
}

func newSession() *model.EditSession {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.EditSession{
		ID:       uuid.New(),
		ClinicID: 7,
		Snapshot: model.NewSnapshot(model.SettingsState{
			Settings: model.ClinicSettings{
				ClinicID:      7,
				ClinicInfo:    model.ClinicInfo{DisplayName: "North"},
				BusinessHours: map[string]model.DayHours{"monday": {Open: "09:00", Close: "18:00"}},
			},
			Assignments: model.PractitionerAssignments{1: {10, 11}},
			Scenarios: model.BillingScenarios{
				{ServiceItemID: 1, PractitionerID: 10}: {{ID: 5, Name: "Standard", Amount: 1000, RevenueShare: 400, IsDefault: true}},
			},
		}),
		LoadedAt:  now,
		UpdatedAt: now,
	}
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	s := newSession()

	require.NoError(t, repo.Create(ctx, s))
	assert.Error(t, repo.Create(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL(key(s.ID)))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Snapshot, got.Snapshot)
	assert.True(t, s.LoadedAt.Equal(got.LoadedAt))
}

func TestSessionRepositoryUpdateRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	s := newSession()
	require.NoError(t, repo.Create(ctx, s))

	mr.FastForward(30 * time.Minute)
	s.Snapshot = s.Snapshot.UpdateCurrent(model.Patch{Assignments: model.PractitionerAssignments{1: {10}}})
	require.NoError(t, repo.Update(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL(key(s.ID)))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, got.Snapshot.Current.Assignments[1])
	assert.Equal(t, []int64{10, 11}, got.Snapshot.Original.Assignments[1])
}

func TestSessionRepositoryMissing(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	s := newSession()

	_, err := repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, s), repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, s.ID), repository.ErrNotFound)

	require.NoError(t, repo.Create(ctx, s))
	mr.FastForward(2 * time.Hour)
	_, err = repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	id := uuid.New()

	unlock, err := repo.Lock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, mr.TTL(lockKey(id)))

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = repo.Lock(waitCtx, id)
	assert.ErrorIs(t, err, repository.ErrLocked)

	unlock()
	assert.False(t, mr.Exists(lockKey(id)))

	unlock, err = repo.Lock(ctx, id)
	require.NoError(t, err)
	unlock()
}

func TestSessionLockWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	id := uuid.New()

	unlock, err := repo.Lock(ctx, id)
	require.NoError(t, err)
	time.AfterFunc(100*time.Millisecond, unlock)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	second, err := repo.Lock(waitCtx, id)
	require.NoError(t, err)
	second()
}

func TestSessionLockReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	id := uuid.New()

	unlock, err := repo.Lock(ctx, id)
	require.NoError(t, err)

	// The first holder outlives its lock and another instance takes over.
	mr.FastForward(defaultLockTTL + time.Second)
	other, err := repo.Lock(ctx, id)
	require.NoError(t, err)

	unlock()
	assert.True(t, mr.Exists(lockKey(id)))
	other()
	assert.False(t, mr.Exists(lockKey(id)))
}
