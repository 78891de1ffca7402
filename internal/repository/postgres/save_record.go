package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
)

type saveRecordRepository struct {
	BaseRepository
}

func NewSaveRecordRepository(base BaseRepository) repository.SaveRecordRepository {
	return &saveRecordRepository{base}
}

func (r *saveRecordRepository) Create(ctx context.Context, record *model.SaveRecord) error {
	query := `
        INSERT INTO settings_save_records (
            id, clinic_id, session_id, status, report,
            error_message, started_at, finished_at, created_at
        ) VALUES (
            :id, :clinic_id, :session_id, :status, :report,
            :error_message, :started_at, :finished_at, :created_at
        )
    `

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("failed to create save record: %w", err)
		}
		return nil
	})
}

func (r *saveRecordRepository) List(ctx context.Context, clinicID int64, limit int) ([]*model.SaveRecord, error) {
	query := `
        SELECT id, clinic_id, session_id, status, report,
               error_message, started_at, finished_at, created_at
        FROM settings_save_records
        WHERE clinic_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	var records []*model.SaveRecord
	if err := r.GetDB().SelectContext(ctx, &records, query, clinicID, limit); err != nil {
		return nil, fmt.Errorf("failed to list save records: %w", err)
	}

	return records, nil
}

func (r *saveRecordRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
        DELETE FROM settings_save_records
        WHERE created_at < $1
    `

	result, err := r.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup save records: %w", err)
	}

	return result.RowsAffected()
}
