package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SettingsState is one version of the three independently saved domains.
type SettingsState struct {
	Settings    ClinicSettings          `json:"settings"`
	Assignments PractitionerAssignments `json:"practitioner_assignments"`
	Scenarios   BillingScenarios        `json:"billing_scenarios"`
}

func (s SettingsState) Clone() SettingsState {
	return SettingsState{
		Settings:    s.Settings.Clone(),
		Assignments: s.Assignments.Clone(),
		Scenarios:   s.Scenarios.Clone(),
	}
}

// Snapshot holds the edited state next to the last server-confirmed state.
// Methods never modify the receiver; they return a new Snapshot.
type Snapshot struct {
	Current  SettingsState `json:"current"`
	Original SettingsState `json:"original"`
}

// NewSnapshot starts a snapshot with no pending edits.
func NewSnapshot(state SettingsState) Snapshot {
	return Snapshot{
		Current:  state.Clone(),
		Original: state.Clone(),
	}
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Current:  s.Current.Clone(),
		Original: s.Original.Clone(),
	}
}

// Patch is a partial edit. Nil fields leave the current value untouched.
// Assignments and Scenarios replace the listed keys only; an empty list
// clears a key.
type Patch struct {
	ClinicInfo       *ClinicInfo                 `json:"clinic_info,omitempty"`
	BusinessHours    map[string]DayHours         `json:"business_hours,omitempty"`
	AppointmentTypes []AppointmentType           `json:"appointment_types,omitempty"`
	Notification     *NotificationSettings       `json:"notification_settings,omitempty"`
	Booking          *BookingRestrictionSettings `json:"booking_restriction_settings,omitempty"`
	Chat             *ChatSettings               `json:"chat_settings,omitempty"`
	Receipt          *ReceiptSettings            `json:"receipt_settings,omitempty"`
	Assignments      PractitionerAssignments     `json:"practitioner_assignments,omitempty"`
	Scenarios        BillingScenarios            `json:"billing_scenarios,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p.ClinicInfo == nil && p.BusinessHours == nil && p.AppointmentTypes == nil &&
		p.Notification == nil && p.Booking == nil && p.Chat == nil && p.Receipt == nil &&
		p.Assignments == nil && p.Scenarios == nil
}

// UpdateCurrent merges p into the current state.
func (s Snapshot) UpdateCurrent(p Patch) Snapshot {
	next := s.Clone()
	cur := &next.Current

	if p.ClinicInfo != nil {
		cur.Settings.ClinicInfo = *p.ClinicInfo
	}
	if p.BusinessHours != nil {
		cur.Settings.BusinessHours = make(map[string]DayHours, len(p.BusinessHours))
		for day, h := range p.BusinessHours {
			cur.Settings.BusinessHours[day] = h
		}
	}
	if p.AppointmentTypes != nil {
		cur.Settings.AppointmentTypes = slices.Clone(p.AppointmentTypes)
	}
	if p.Notification != nil {
		cur.Settings.Notification = *p.Notification
	}
	if p.Booking != nil {
		cur.Settings.Booking = *p.Booking
	}
	if p.Chat != nil {
		cur.Settings.Chat = *p.Chat
	}
	if p.Receipt != nil {
		cur.Settings.Receipt = *p.Receipt
	}
	if p.Assignments != nil {
		if cur.Assignments == nil {
			cur.Assignments = make(PractitionerAssignments, len(p.Assignments))
		}
		for typeID, practitioners := range p.Assignments {
			cur.Assignments[typeID] = NormalizeIDs(practitioners)
		}
	}
	if p.Scenarios != nil {
		if cur.Scenarios == nil {
			cur.Scenarios = make(BillingScenarios, len(p.Scenarios))
		}
		for key, list := range p.Scenarios {
			cur.Scenarios[key] = slices.Clone(list)
		}
	}
	return next
}

// Commit promotes the current state to the baseline.
func (s Snapshot) Commit() Snapshot {
	return Snapshot{
		Current:  s.Current.Clone(),
		Original: s.Current.Clone(),
	}
}

// Reset discards edits by copying the baseline over the current state.
func (s Snapshot) Reset() Snapshot {
	return Snapshot{
		Current:  s.Original.Clone(),
		Original: s.Original.Clone(),
	}
}

// CommitDomains promotes only the listed domains.
func (s Snapshot) CommitDomains(domains ...Domain) Snapshot {
	next := s.Clone()
	for _, d := range domains {
		switch d {
		case DomainClinicSettings:
			next.Original.Settings = next.Current.Settings.Clone()
		case DomainPractitionerAssignments:
			next.Original.Assignments = next.Current.Assignments.Clone()
		case DomainBillingScenarios:
			next.Original.Scenarios = next.Current.Scenarios.Clone()
		}
	}
	return next
}

// EditSession is one administrator's editing state for a clinic.
type EditSession struct {
	ID          uuid.UUID  `json:"id"`
	ClinicID    int64      `json:"clinic_id"`
	Snapshot    Snapshot   `json:"snapshot"`
	LoadedAt    time.Time  `json:"loaded_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
}

func (s *EditSession) Clone() *EditSession {
	out := *s
	out.Snapshot = s.Snapshot.Clone()
	if s.LastSavedAt != nil {
		t := *s.LastSavedAt
		out.LastSavedAt = &t
	}
	return &out
}
