package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/messaging"
)

const (
	TypeSettingsSaved      = "settings.saved"
	TypeSettingsSaveFailed = "settings.save_failed"
)

const publishTimeout = 5 * time.Second

// EventService publishes save outcomes to the broker. Publish failures are
// logged and never reach the caller.
type EventService struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
	now     func() time.Time
}

func NewEventService(broker messaging.Broker, channel string, log *logger.Logger) *EventService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventService{
		broker:  broker,
		channel: channel,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EventType maps a save status to the published event type.
func EventType(status model.SaveStatus) string {
	if status == model.SaveStatusSuccess {
		return TypeSettingsSaved
	}
	return TypeSettingsSaveFailed
}

func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return s.broker.Publish(ctx, s.channel, messaging.Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: s.now(),
		Payload:    payload,
	})
}

func (s *EventService) SaveCompleted(ctx context.Context, outcome model.SaveOutcome) {
	eventType := EventType(outcome.Status)
	if err := s.Emit(ctx, eventType, outcome); err != nil {
		s.logger.WithContext(ctx).Error(err, "failed to publish save event",
			"event_type", eventType,
			"clinic_id", outcome.ClinicID,
			"session_id", outcome.SessionID.String())
	}
}
