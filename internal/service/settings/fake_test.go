package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

var errRemote = errors.New("remote unavailable")

// fakeRemote records every mutation as a short string such as
// "assign(10,[1])" or "delete(5,9,11)".
type fakeRemote struct {
	mu    sync.Mutex
	calls []string

	settings    model.ClinicSettings
	members     []model.Member
	typesByPrac map[int64][]int64
	scenarios   model.BillingScenarios
	nextID      int64

	settingsErr error
	membersErr  error
	assignErr   map[int64]error
	createErr   map[string]error
	updateErr   map[int64]error
	deleteErr   map[int64]error
	loadErr     error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		typesByPrac: map[int64][]int64{},
		scenarios:   model.BillingScenarios{},
		nextID:      42,
		assignErr:   map[int64]error{},
		createErr:   map[string]error{},
		updateErr:   map[int64]error{},
		deleteErr:   map[int64]error{},
	}
}

func (f *fakeRemote) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.calls)
	slices.Sort(out)
	return out
}

// OrderedCalls returns the calls in the order they were made.
func (f *fakeRemote) OrderedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRemote) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeRemote) UpdateClinicSettings(ctx context.Context, settings model.ClinicSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update_settings")
	if f.settingsErr != nil {
		return f.settingsErr
	}
	f.settings = settings.Clone()
	return nil
}

func (f *fakeRemote) GetMembers(ctx context.Context) ([]model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return slices.Clone(f.members), nil
}

func (f *fakeRemote) UpdatePractitionerAppointmentTypes(ctx context.Context, practitionerID int64, typeIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("assign(%d,%s)", practitionerID, formatIDs(typeIDs))
	if err := f.assignErr[practitionerID]; err != nil {
		return err
	}
	f.typesByPrac[practitionerID] = slices.Clone(typeIDs)
	return nil
}

func (f *fakeRemote) CreateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) (model.BillingScenarioRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create(%d,%d,%s)", key.ServiceItemID, key.PractitionerID, s.Name)
	if err := f.createErr[s.Name]; err != nil {
		return model.BillingScenarioRef{}, err
	}
	s.ID = f.nextID
	f.nextID++
	f.scenarios[key] = append(f.scenarios[key], s)
	return model.BillingScenarioRef{ID: s.ID, PractitionerAppointmentTypeID: key.ServiceItemID*100 + key.PractitionerID}, nil
}

func (f *fakeRemote) UpdateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update(%d,%d,%d)", key.ServiceItemID, key.PractitionerID, s.ID)
	return f.updateErr[s.ID]
}

func (f *fakeRemote) DeleteBillingScenario(ctx context.Context, key model.ScenarioKey, scenarioID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete(%d,%d,%d)", key.ServiceItemID, key.PractitionerID, scenarioID)
	return f.deleteErr[scenarioID]
}

func (f *fakeRemote) GetClinicSettings(ctx context.Context) (model.ClinicSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return model.ClinicSettings{}, f.loadErr
	}
	return f.settings.Clone(), nil
}

func (f *fakeRemote) GetPractitionerAppointmentTypes(ctx context.Context, practitionerID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.typesByPrac[practitionerID]), nil
}

func (f *fakeRemote) ListBillingScenarios(ctx context.Context, key model.ScenarioKey) ([]model.BillingScenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.scenarios[key]), nil
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func testSettings() model.ClinicSettings {
	return model.ClinicSettings{
		ClinicID:   7,
		ClinicInfo: model.ClinicInfo{DisplayName: "Harbor Clinic", Phone: "03-1234-5678"},
		BusinessHours: map[string]model.DayHours{
			"monday":   {Open: "09:00", Close: "18:00"},
			"saturday": {Closed: true},
		},
		AppointmentTypes: []model.AppointmentType{
			{ID: 1, Name: "Initial consultation", DurationMinutes: 60, AllowPatientBooking: true},
			{ID: 2, Name: "Follow-up", DurationMinutes: 30, AllowPatientBooking: true},
			{ID: 5, Name: "Massage", DurationMinutes: 45},
		},
		Notification: model.NotificationSettings{ReminderEnabled: true, ReminderHoursBefore: 24},
		Booking:      model.BookingRestrictionSettings{MinimumBookingHoursAhead: 2, MaxBookingWindowDays: 90},
	}
}

func testMembers() []model.Member {
	return []model.Member{
		{ID: 1, FullName: "Admin Ueda", Roles: []string{model.RoleAdmin}, IsActive: true},
		{ID: 9, FullName: "Dr. Sato", Roles: []string{model.RolePractitioner}, IsActive: true},
		{ID: 10, FullName: "Dr. Tanaka", Roles: []string{model.RolePractitioner, model.RoleAdmin}, IsActive: true},
	}
}

func testState() model.SettingsState {
	return model.SettingsState{
		Settings: testSettings(),
		Assignments: model.PractitionerAssignments{
			1: {10},
			2: {10},
			5: {9},
		},
		Scenarios: model.BillingScenarios{
			{ServiceItemID: 5, PractitionerID: 9}: {
				{ID: 11, Name: "Standard", Amount: 5000, RevenueShare: 2000, IsDefault: true},
				{ID: 12, Name: "Member rate", Amount: 4000, RevenueShare: 1600},
			},
		},
	}
}

// seededRemote returns a remote whose server-side data matches testState.
func seededRemote() *fakeRemote {
	f := newFakeRemote()
	state := testState()
	f.settings = state.Settings.Clone()
	f.members = testMembers()
	for pid, types := range state.Assignments.ByPractitioner() {
		f.typesByPrac[pid] = types
	}
	f.scenarios = state.Scenarios.Clone()
	return f
}
