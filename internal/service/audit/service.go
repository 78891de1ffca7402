package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
)

// Service records every settled save and keeps the history bounded.
type Service struct {
	repo    repository.SaveRecordRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.SaveRecordRepository, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record stores outcome as a save record.
func (s *Service) Record(ctx context.Context, outcome model.SaveOutcome) (*model.SaveRecord, error) {
	report, err := json.Marshal(outcome.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save report: %w", err)
	}

	record := &model.SaveRecord{
		ID:           uuid.New(),
		ClinicID:     outcome.ClinicID,
		SessionID:    outcome.SessionID,
		Status:       outcome.Status,
		Report:       report,
		ErrorMessage: outcome.Error,
		StartedAt:    outcome.StartedAt,
		FinishedAt:   outcome.FinishedAt,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SaveCompleted records the outcome, logging instead of failing the save.
func (s *Service) SaveCompleted(ctx context.Context, outcome model.SaveOutcome) {
	if _, err := s.Record(ctx, outcome); err != nil {
		s.logger.WithContext(ctx).Error(err, "failed to record settings save",
			"clinic_id", outcome.ClinicID,
			"session_id", outcome.SessionID.String(),
			"status", string(outcome.Status))
	}
}

// List returns the most recent records for the clinic, newest first.
func (s *Service) List(ctx context.Context, clinicID int64, limit int) ([]*model.SaveRecord, error) {
	if limit <= 0 {
		limit = model.DefaultSaveRecordLimit
	}
	limit = min(limit, model.MaxSaveRecordLimit)
	return s.repo.List(ctx, clinicID, limit)
}

// Cleanup deletes records created before now minus maxAge.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	n, err := s.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordsPurged(n)
	return n, nil
}
