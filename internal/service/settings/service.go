package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
)

// SaveListener is told about every settled save, including rejected ones.
type SaveListener interface {
	SaveCompleted(ctx context.Context, outcome model.SaveOutcome)
}

const lockStripes = 64

// Service manages edit sessions for the HTTP layer. Calls touching one
// session are serialized, across instances when the store supports locking.
type Service struct {
	sessions     repository.SessionRepository
	source       Source
	orchestrator *Orchestrator
	listeners    []SaveListener
	logger       *logger.Logger
	metrics      *metrics.Metrics
	locks        [lockStripes]sync.Mutex
	now          func() time.Time
}

func NewService(
	sessions repository.SessionRepository,
	source Source,
	orchestrator *Orchestrator,
	log *logger.Logger,
	m *metrics.Metrics,
	listeners ...SaveListener,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		sessions:     sessions,
		source:       source,
		orchestrator: orchestrator,
		listeners:    listeners,
		logger:       log,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// lock serializes calls on one session within the process and, when the
// session store is shared, across instances.
func (s *Service) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	mu := &s.locks[int(id[len(id)-1])%lockStripes]
	mu.Lock()

	locker, ok := s.sessions.(repository.SessionLocker)
	if !ok {
		return mu.Unlock, nil
	}
	release, err := locker.Lock(ctx, id)
	if err != nil {
		mu.Unlock()
		if errors.Is(err, repository.ErrLocked) {
			return nil, apperrors.NewConflict("settings session is busy", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}

// Open loads the clinic's settings into a new session.
func (s *Service) Open(ctx context.Context, clinicID int64) (*model.EditSession, error) {
	state, err := Load(ctx, s.source)
	if err != nil {
		return nil, apperrors.NewUpstream("failed to load clinic settings", err)
	}
	if state.Settings.ClinicID == 0 {
		state.Settings.ClinicID = clinicID
	}
	if state.Settings.ClinicID != clinicID {
		return nil, &apperrors.AppError{
			Code:    apperrors.ErrForbidden,
			Message: fmt.Sprintf("clinic API returned settings for clinic %d", state.Settings.ClinicID),
		}
	}

	now := s.now()
	session := &model.EditSession{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		Snapshot:  model.NewSnapshot(state),
		LoadedAt:  now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.metrics.SessionOpened()
	s.logger.Info("settings session opened",
		"session_id", session.ID.String(),
		"clinic_id", clinicID)
	return session, nil
}

// Get returns the session when it belongs to clinicID.
func (s *Service) Get(ctx context.Context, clinicID int64, id uuid.UUID) (*model.EditSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("settings session", nil)
		}
		return nil, apperrors.NewInternal(err)
	}
	if session.ClinicID != clinicID {
		return nil, apperrors.NewNotFound("settings session", nil)
	}
	return session, nil
}

// Update merges patch into the session's current state.
func (s *Service) Update(ctx context.Context, clinicID int64, id uuid.UUID, patch model.Patch) (*model.EditSession, Changes, error) {
	if patch.IsEmpty() {
		return nil, nil, apperrors.NewBadRequest("patch is empty", nil)
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()
	session, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, nil, err
	}

	session.Snapshot = session.Snapshot.UpdateCurrent(patch)
	session.UpdatedAt = s.now()
	if err := s.store(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, DetectChanges(session.Snapshot.Current, session.Snapshot.Original), nil
}

func (s *Service) Changes(ctx context.Context, clinicID int64, id uuid.UUID) (Changes, error) {
	session, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	return DetectChanges(session.Snapshot.Current, session.Snapshot.Original), nil
}

// Save runs the orchestrator over the session and stores the reconciled
// snapshot. A *SaveError is returned alongside the result when any domain
// failed; validation failures come back as an unprocessable AppError.
func (s *Service) Save(ctx context.Context, clinicID int64, id uuid.UUID) (*SaveResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	session, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	started := s.now()
	result, saveErr := s.orchestrator.Save(ctx, session.Snapshot)
	outcome := model.SaveOutcome{
		ClinicID:   clinicID,
		SessionID:  id,
		StartedAt:  started,
		FinishedAt: s.now(),
	}

	// The remote calls already happened, so the session and listeners are
	// updated even when the request context is gone.
	bg := context.WithoutCancel(ctx)

	if result == nil {
		outcome.Status = model.SaveStatusInvalid
		outcome.Error = saveErr.Error()
		s.notify(bg, outcome)
		if IsValidation(saveErr) {
			return nil, apperrors.NewUnprocessable("validation failed", saveErr)
		}
		return nil, apperrors.NewInternal(saveErr)
	}

	outcome.Status = result.Report.Status()
	outcome.Report = result.Report
	if saveErr != nil {
		outcome.Error = saveErr.Error()
	}

	session.Snapshot = result.Snapshot
	session.UpdatedAt = outcome.FinishedAt
	if outcome.Status != model.SaveStatusFailed {
		saved := outcome.FinishedAt
		session.LastSavedAt = &saved
	}
	if err := s.store(bg, session); err != nil {
		s.logger.Error(err, "failed to store session after save",
			"session_id", id.String(),
			"clinic_id", clinicID)
		// The stored baseline no longer matches the server. Drop the session
		// so it cannot be saved again with stale temporary ids.
		if delErr := s.sessions.Delete(bg, id); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
			s.logger.Error(delErr, "failed to drop stale session",
				"session_id", id.String(),
				"clinic_id", clinicID)
		}
		outcome.Error = joinMessages(outcome.Error, "session not stored: "+err.Error())
		s.notify(bg, outcome)
		return nil, apperrors.NewConflict("settings were saved but the session is stale, open a new session", errors.Join(err, saveErr))
	}

	s.notify(bg, outcome)
	return result, saveErr
}

// Reset discards pending edits.
func (s *Service) Reset(ctx context.Context, clinicID int64, id uuid.UUID) (*model.EditSession, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	session, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	session.Snapshot = session.Snapshot.Reset()
	session.UpdatedAt = s.now()
	if err := s.store(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) Close(ctx context.Context, clinicID int64, id uuid.UUID) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := s.Get(ctx, clinicID, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("settings session", nil)
		}
		return apperrors.NewInternal(err)
	}
	s.logger.Info("settings session closed", "session_id", id.String(), "clinic_id", clinicID)
	return nil
}

func (s *Service) store(ctx context.Context, session *model.EditSession) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("settings session", nil)
		}
		return apperrors.NewInternal(err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, outcome model.SaveOutcome) {
	for _, l := range s.listeners {
		l.SaveCompleted(ctx, outcome)
	}
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
