package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SaveRecord is the persisted audit entry for one save invocation.
type SaveRecord struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ClinicID     int64           `json:"clinic_id" db:"clinic_id"`
	SessionID    uuid.UUID       `json:"session_id" db:"session_id"`
	Status       SaveStatus      `json:"status" db:"status"`
	Report       json.RawMessage `json:"report" db:"report"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	FinishedAt   time.Time       `json:"finished_at" db:"finished_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

const (
	DefaultSaveRecordLimit = 20
	MaxSaveRecordLimit     = 100
)
