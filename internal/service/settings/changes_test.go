package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

func TestDetectChangesIdentity(t *testing.T) {
	state := testState()
	assert.Empty(t, DetectChanges(state, state.Clone()))
	assert.False(t, DetectChanges(state, state).Any())
}

func TestDetectChangesPerSection(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(s *model.SettingsState)
		expect Section
	}{
		{"clinic info", func(s *model.SettingsState) { s.Settings.ClinicInfo.Phone = "" }, SectionClinicInfo},
		{"business hours", func(s *model.SettingsState) {
			s.Settings.BusinessHours["monday"] = model.DayHours{Open: "10:00", Close: "18:00"}
		}, SectionBusinessHours},
		{"appointment types", func(s *model.SettingsState) { s.Settings.AppointmentTypes[0].DurationMinutes = 90 }, SectionAppointmentTypes},
		{"notification", func(s *model.SettingsState) { s.Settings.Notification.ReminderEnabled = false }, SectionNotification},
		{"booking", func(s *model.SettingsState) { s.Settings.Booking.AllowSameDayCancellation = true }, SectionBooking},
		{"chat", func(s *model.SettingsState) { s.Settings.Chat.Enabled = true }, SectionChat},
		{"receipt", func(s *model.SettingsState) { s.Settings.Receipt.ShowStamp = true }, SectionReceipt},
		{"assignments", func(s *model.SettingsState) { s.Assignments[2] = []int64{9, 10} }, SectionPractitionerAssignments},
		{"scenarios", func(s *model.SettingsState) { s.Scenarios[key59][1].Amount = 4100 }, SectionBillingScenarios},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := testState()
			current := original.Clone()
			tt.edit(&current)

			changes := DetectChanges(current, original)
			assert.Equal(t, Changes{tt.expect: true}, changes)
			assert.True(t, changes.Domain(tt.expect.Domain()))
		})
	}
}

func TestAssignmentsCompareAsSets(t *testing.T) {
	a := model.PractitionerAssignments{1: {10, 9}, 2: {10, 10}}
	b := model.PractitionerAssignments{2: {10}, 1: {9, 10}, 3: {}}
	assert.True(t, AssignmentsEqual(a, b))
	assert.True(t, AssignmentsEqual(nil, model.PractitionerAssignments{4: nil}))
	assert.False(t, AssignmentsEqual(a, model.PractitionerAssignments{1: {9}, 2: {10}}))
}

func TestScenarioListsIgnoreOrder(t *testing.T) {
	list := testState().Scenarios[key59]
	reversed := []model.BillingScenario{list[1], list[0]}
	assert.True(t, ScenarioListsEqual(list, reversed))

	changed := []model.BillingScenario{list[1], list[0]}
	changed[0].IsDefault = true
	assert.False(t, ScenarioListsEqual(list, changed))
	assert.False(t, ScenarioListsEqual(list, list[:1]))
}

func TestChangedScenarioKeys(t *testing.T) {
	k1 := model.ScenarioKey{ServiceItemID: 1, PractitionerID: 10}
	k2 := model.ScenarioKey{ServiceItemID: 2, PractitionerID: 10}
	s := model.BillingScenario{ID: 3, Name: "x", Amount: 1}

	current := model.BillingScenarios{k2: {s}, k1: {s}, key59: {}}
	original := model.BillingScenarios{k1: {s}}

	assert.Equal(t, []model.ScenarioKey{k2}, ChangedScenarioKeys(current, original))
	assert.Equal(t, []model.ScenarioKey{k1}, ChangedScenarioKeys(model.BillingScenarios{k1: {}, k2: {s}}, current))
}

func TestChangesSectionsSorted(t *testing.T) {
	c := Changes{SectionReceipt: true, SectionBillingScenarios: true, SectionChat: true}
	assert.Equal(t, []Section{SectionBillingScenarios, SectionChat, SectionReceipt}, c.Sections())
	assert.True(t, c.Dirty(SectionChat))
	assert.False(t, c.Dirty(SectionBooking))
	assert.False(t, c.Domain(model.DomainPractitionerAssignments))
}
