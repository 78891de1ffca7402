package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = ScenarioKey{ServiceItemID: 5, PractitionerID: 9}

func baseState() SettingsState {
	return SettingsState{
		Settings: ClinicSettings{
			ClinicID:         7,
			ClinicInfo:       ClinicInfo{DisplayName: "Harbor Clinic"},
			BusinessHours:    map[string]DayHours{"monday": {Open: "09:00", Close: "18:00"}},
			AppointmentTypes: []AppointmentType{{ID: 1, Name: "Consultation", DurationMinutes: 30}},
		},
		Assignments: PractitionerAssignments{1: {10}},
		Scenarios: BillingScenarios{
			testKey: {{ID: 11, Name: "Standard", Amount: 5000, RevenueShare: 2000, IsDefault: true}},
		},
	}
}

func TestUpdateCurrentIsPure(t *testing.T) {
	snap := NewSnapshot(baseState())
	info := ClinicInfo{DisplayName: "Harbor Clinic East"}

	next := snap.UpdateCurrent(Patch{
		ClinicInfo:  &info,
		Assignments: PractitionerAssignments{2: {11, 10, 11}},
	})

	assert.Equal(t, "Harbor Clinic", snap.Current.Settings.ClinicInfo.DisplayName)
	assert.NotContains(t, snap.Current.Assignments, int64(2))

	assert.Equal(t, info, next.Current.Settings.ClinicInfo)
	assert.Equal(t, []int64{10, 11}, next.Current.Assignments[2])
	assert.Equal(t, []int64{10}, next.Current.Assignments[1], "unlisted keys are kept")
	assert.Equal(t, snap.Original, next.Original)
}

func TestUpdateCurrentDoesNotAliasPatch(t *testing.T) {
	hours := map[string]DayHours{"tuesday": {Closed: true}}
	scenarios := []BillingScenario{{ID: -1, Name: "New", Amount: 10}}
	next := NewSnapshot(baseState()).UpdateCurrent(Patch{
		BusinessHours: hours,
		Scenarios:     BillingScenarios{testKey: scenarios},
	})

	hours["wednesday"] = DayHours{Closed: true}
	scenarios[0].Name = "Changed"
	assert.Len(t, next.Current.Settings.BusinessHours, 1)
	assert.Equal(t, "New", next.Current.Scenarios[testKey][0].Name)
}

func TestCommitAndReset(t *testing.T) {
	info := ClinicInfo{DisplayName: "Harbor Clinic East"}
	edited := NewSnapshot(baseState()).UpdateCurrent(Patch{ClinicInfo: &info})

	committed := edited.Commit()
	assert.Equal(t, committed.Current, committed.Original)
	assert.Equal(t, "Harbor Clinic East", committed.Original.Settings.ClinicInfo.DisplayName)

	committed.Current.Assignments[1] = append(committed.Current.Assignments[1], 12)
	assert.Equal(t, []int64{10}, committed.Original.Assignments[1], "commit deep-copies")

	reset := edited.Reset()
	assert.Equal(t, reset.Original, reset.Current)
	assert.Equal(t, "Harbor Clinic", reset.Current.Settings.ClinicInfo.DisplayName)
}

func TestCommitDomains(t *testing.T) {
	info := ClinicInfo{DisplayName: "Harbor Clinic East"}
	edited := NewSnapshot(baseState()).UpdateCurrent(Patch{
		ClinicInfo:  &info,
		Assignments: PractitionerAssignments{1: {}},
	})

	next := edited.CommitDomains(DomainPractitionerAssignments)
	assert.Equal(t, next.Current.Assignments, next.Original.Assignments)
	assert.Equal(t, "Harbor Clinic", next.Original.Settings.ClinicInfo.DisplayName)
}

func TestPatchIsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, Patch{Assignments: PractitionerAssignments{}}.IsEmpty())
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := NewSnapshot(baseState())
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"5:9"`)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, decoded)
}
