package settings

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
	"github.com/jwalitptl/clinic-settings/internal/repository/memory"
	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
)

type recordingListener struct {
	mu       sync.Mutex
	outcomes []model.SaveOutcome
}

func (l *recordingListener) SaveCompleted(ctx context.Context, outcome model.SaveOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcome)
}

func (l *recordingListener) last() model.SaveOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcomes[len(l.outcomes)-1]
}

func newTestService(t *testing.T, remote *fakeRemote) (*Service, *recordingListener) {
	t.Helper()
	listener := &recordingListener{}
	repo := memory.NewSessionRepository(time.Hour, time.Hour)
	svc := NewService(repo, remote, newTestOrchestrator(remote, Options{}), nil, nil, listener)
	return svc, listener
}

func TestServiceOpenAndScope(t *testing.T) {
	svc, _ := newTestService(t, seededRemote())
	ctx := context.Background()

	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), session.ClinicID)
	assert.Equal(t, testState(), session.Snapshot.Current)

	got, err := svc.Get(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = svc.Get(ctx, 8, session.ID)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))

	_, err = svc.Get(ctx, 7, uuid.New())
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
}

func TestServiceOpenRejectsOtherClinic(t *testing.T) {
	svc, _ := newTestService(t, seededRemote())
	_, err := svc.Open(context.Background(), 8)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusCode(err))
}

func TestServiceOpenUpstreamFailure(t *testing.T) {
	remote := seededRemote()
	remote.loadErr = errRemote
	svc, _ := newTestService(t, remote)

	_, err := svc.Open(context.Background(), 7)
	assert.Equal(t, http.StatusBadGateway, apperrors.StatusCode(err))
}

func TestServiceUpdateAndReset(t *testing.T) {
	svc, _ := newTestService(t, seededRemote())
	ctx := context.Background()
	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)

	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{})
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	chat := model.ChatSettings{Enabled: true, AutoReplyText: "We will reply soon"}
	_, changes, err := svc.Update(ctx, 7, session.ID, model.Patch{Chat: &chat})
	require.NoError(t, err)
	assert.Equal(t, Changes{SectionChat: true}, changes)

	changes, err = svc.Changes(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, Changes{SectionChat: true}, changes)

	reset, err := svc.Reset(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, reset.Snapshot.Original, reset.Snapshot.Current)

	changes, err = svc.Changes(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestServiceSaveStoresReconciledSnapshot(t *testing.T) {
	remote := seededRemote()
	svc, listener := newTestService(t, remote)
	ctx := context.Background()
	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)

	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{
		Scenarios: model.BillingScenarios{key59: append(testState().Scenarios[key59],
			model.BillingScenario{ID: -1, Name: "Senior", Amount: 6000, RevenueShare: 6000})},
	})
	require.NoError(t, err)

	result, err := svc.Save(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, result.Phase)

	stored, err := svc.Get(ctx, 7, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSavedAt)
	assert.Equal(t, int64(42), stored.Snapshot.Current.Scenarios[key59][2].ID)
	assert.Equal(t, stored.Snapshot.Current, stored.Snapshot.Original)

	outcome := listener.last()
	assert.Equal(t, model.SaveStatusSuccess, outcome.Status)
	assert.Equal(t, session.ID, outcome.SessionID)
	assert.Equal(t, int64(7), outcome.ClinicID)
}

func TestServiceSavePartialFailure(t *testing.T) {
	remote := seededRemote()
	remote.settingsErr = errRemote
	svc, listener := newTestService(t, remote)
	ctx := context.Background()
	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)

	info := model.ClinicInfo{DisplayName: "Harbor Clinic East"}
	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{
		ClinicInfo:  &info,
		Assignments: model.PractitionerAssignments{2: {}},
	})
	require.NoError(t, err)

	result, err := svc.Save(ctx, 7, session.ID)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	require.NotNil(t, result)

	changes, err := svc.Changes(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, Changes{SectionClinicInfo: true}, changes)

	outcome := listener.last()
	assert.Equal(t, model.SaveStatusPartialFailure, outcome.Status)
	assert.Contains(t, outcome.Error, "remote unavailable")
}

func TestServiceSaveValidationError(t *testing.T) {
	remote := seededRemote()
	svc, listener := newTestService(t, remote)
	ctx := context.Background()
	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)

	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{ClinicInfo: &model.ClinicInfo{}})
	require.NoError(t, err)

	result, err := svc.Save(ctx, 7, session.ID)
	assert.Nil(t, result)
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.StatusCode(err))
	assert.True(t, IsValidation(err))
	assert.Empty(t, remote.Calls())
	assert.Equal(t, model.SaveStatusInvalid, listener.last().Status)

	stored, err := svc.Get(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSavedAt)
}

func TestServiceClose(t *testing.T) {
	svc, _ := newTestService(t, seededRemote())
	ctx := context.Background()
	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(svc.Close(ctx, 8, session.ID)))
	require.NoError(t, svc.Close(ctx, 7, session.ID))
	_, err = svc.Get(ctx, 7, session.ID)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
}

// flakyRepo fails the next Update when failUpdate is set.
type flakyRepo struct {
	*memory.SessionRepository
	failUpdate bool
}

func (r *flakyRepo) Update(ctx context.Context, session *model.EditSession) error {
	if r.failUpdate {
		r.failUpdate = false
		return errors.New("connection reset")
	}
	return r.SessionRepository.Update(ctx, session)
}

// lockingRepo is a shared session store that hands out per-session locks.
type lockingRepo struct {
	*memory.SessionRepository
	lockErr  error
	locks    int
	releases int
}

func (r *lockingRepo) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	r.locks++
	return func() { r.releases++ }, nil
}

var _ repository.SessionLocker = (*lockingRepo)(nil)

func TestServiceSaveStoreFailureDropsSession(t *testing.T) {
	remote := seededRemote()
	repo := &flakyRepo{SessionRepository: memory.NewSessionRepository(time.Hour, time.Hour)}
	listener := &recordingListener{}
	svc := NewService(repo, remote, newTestOrchestrator(remote, Options{}), nil, nil, listener)
	ctx := context.Background()

	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)
	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{
		Scenarios: model.BillingScenarios{key59: append(testState().Scenarios[key59],
			model.BillingScenario{ID: -1, Name: "Trial", Amount: 3000, RevenueShare: 1000})},
	})
	require.NoError(t, err)

	repo.failUpdate = true
	result, err := svc.Save(ctx, 7, session.ID)
	assert.Nil(t, result)
	assert.Equal(t, http.StatusConflict, apperrors.StatusCode(err))
	assert.Equal(t, []string{"create(5,9,Trial)"}, remote.Calls())

	outcome := listener.last()
	assert.Equal(t, model.SaveStatusSuccess, outcome.Status)
	assert.Contains(t, outcome.Error, "session not stored")

	// The stale session is gone, so its temporary id cannot be created twice.
	remote.Reset()
	_, err = svc.Save(ctx, 7, session.ID)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
	assert.Empty(t, remote.Calls())

	reopened, err := svc.Open(ctx, 7)
	require.NoError(t, err)
	scenarios := reopened.Snapshot.Current.Scenarios[key59]
	require.Len(t, scenarios, 3)
	assert.Equal(t, int64(42), scenarios[2].ID)
}

func TestServiceUsesSharedSessionLock(t *testing.T) {
	remote := seededRemote()
	repo := &lockingRepo{SessionRepository: memory.NewSessionRepository(time.Hour, time.Hour)}
	svc := NewService(repo, remote, newTestOrchestrator(remote, Options{}), nil, nil)
	ctx := context.Background()

	session, err := svc.Open(ctx, 7)
	require.NoError(t, err)
	_, _, err = svc.Update(ctx, 7, session.ID, model.Patch{Assignments: model.PractitionerAssignments{2: {}}})
	require.NoError(t, err)
	_, err = svc.Save(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.locks)
	assert.Equal(t, 2, repo.releases)

	repo.lockErr = repository.ErrLocked
	remote.Reset()
	_, err = svc.Save(ctx, 7, session.ID)
	assert.Equal(t, http.StatusConflict, apperrors.StatusCode(err))
	assert.Empty(t, remote.Calls())

	repo.lockErr = errors.New("connection refused")
	_, err = svc.Save(ctx, 7, session.ID)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
}
