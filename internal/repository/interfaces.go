package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

// ErrNotFound is returned when a session or record does not exist or expired.
var ErrNotFound = errors.New("not found")

// ErrLocked is returned when another caller keeps a session locked.
var ErrLocked = errors.New("locked")

// All repository interfaces in one file
type (
	// SessionRepository stores edit sessions until they expire
	SessionRepository interface {
		Create(ctx context.Context, session *model.EditSession) error
		Get(ctx context.Context, id uuid.UUID) (*model.EditSession, error)
		Update(ctx context.Context, session *model.EditSession) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// SessionLocker is implemented by session stores shared between
	// instances. Lock blocks until the session is free or ctx is done.
	SessionLocker interface {
		Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
	}

	// SaveRecordRepository keeps the history of save attempts
	SaveRecordRepository interface {
		Create(ctx context.Context, record *model.SaveRecord) error
		List(ctx context.Context, clinicID int64, limit int) ([]*model.SaveRecord, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
