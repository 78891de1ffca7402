package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

type fakeRepo struct {
	records   []*model.SaveRecord
	createErr error
	limit     int
	cutoff    time.Time
}

func (r *fakeRepo) Create(ctx context.Context, record *model.SaveRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRepo) List(ctx context.Context, clinicID int64, limit int) ([]*model.SaveRecord, error) {
	r.limit = limit
	return r.records, nil
}

func (r *fakeRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.cutoff = before
	return 4, nil
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestRecord(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	outcome := model.SaveOutcome{
		ClinicID:  7,
		SessionID: uuid.New(),
		Status:    model.SaveStatusPartialFailure,
		Report: model.SaveReport{Sections: []model.SectionReport{
			{Domain: model.DomainClinicSettings, Status: model.SectionFailed, Attempted: 1,
				Errors: []model.ItemError{{Label: "clinic settings", Message: "boom"}}},
		}},
		Error: "settings save failed",
	}

	record, err := svc.Record(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, outcome.SessionID, record.SessionID)
	assert.Equal(t, model.SaveStatusPartialFailure, record.Status)
	assert.Equal(t, "settings save failed", record.ErrorMessage)
	assert.Contains(t, string(record.Report), `"label":"clinic settings"`)
	assert.Len(t, repo.records, 1)
}

func TestSaveCompletedSwallowsErrors(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	svc := newTestService(repo)

	assert.NotPanics(t, func() {
		svc.SaveCompleted(context.Background(), model.SaveOutcome{Status: model.SaveStatusSuccess})
	})
}

func TestListClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	for _, tt := range []struct{ in, want int }{
		{0, model.DefaultSaveRecordLimit},
		{-1, model.DefaultSaveRecordLimit},
		{5, 5},
		{1000, model.MaxSaveRecordLimit},
	} {
		_, err := svc.List(context.Background(), 7, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, repo.limit)
	}
}

func TestCleanupUsesMaxAge(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	n, err := svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), repo.cutoff)
}
