package settings

import (
	"maps"
	"slices"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

// Section is a logical group of settings tracked for dirtiness.
type Section string

const (
	SectionClinicInfo              Section = "clinic_info"
	SectionBusinessHours           Section = "business_hours"
	SectionAppointmentTypes        Section = "appointment_types"
	SectionNotification            Section = "notification"
	SectionBooking                 Section = "booking"
	SectionChat                    Section = "chat"
	SectionReceipt                 Section = "receipt"
	SectionPractitionerAssignments Section = "practitioner_assignments"
	SectionBillingScenarios        Section = "billing_scenarios"
)

// Domain returns the save domain the section belongs to.
func (s Section) Domain() model.Domain {
	switch s {
	case SectionPractitionerAssignments:
		return model.DomainPractitionerAssignments
	case SectionBillingScenarios:
		return model.DomainBillingScenarios
	default:
		return model.DomainClinicSettings
	}
}

// Changes holds the dirty sections only. It is derived, never stored.
type Changes map[Section]bool

func (c Changes) Any() bool {
	return len(c) > 0
}

func (c Changes) Dirty(s Section) bool {
	return c[s]
}

// Domain reports whether any section of d is dirty.
func (c Changes) Domain(d model.Domain) bool {
	for s := range c {
		if s.Domain() == d {
			return true
		}
	}
	return false
}

// Sections returns the dirty sections sorted by name.
func (c Changes) Sections() []Section {
	out := make([]Section, 0, len(c))
	for s := range c {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// DetectChanges compares current against original section by section.
func DetectChanges(current, original model.SettingsState) Changes {
	changes := Changes{}
	mark := func(s Section, equal bool) {
		if !equal {
			changes[s] = true
		}
	}

	cur, orig := current.Settings, original.Settings
	mark(SectionClinicInfo, cur.ClinicInfo == orig.ClinicInfo)
	mark(SectionBusinessHours, maps.Equal(cur.BusinessHours, orig.BusinessHours))
	mark(SectionAppointmentTypes, slices.Equal(cur.AppointmentTypes, orig.AppointmentTypes))
	mark(SectionNotification, cur.Notification == orig.Notification)
	mark(SectionBooking, cur.Booking == orig.Booking)
	mark(SectionChat, cur.Chat == orig.Chat)
	mark(SectionReceipt, cur.Receipt == orig.Receipt)
	mark(SectionPractitionerAssignments, AssignmentsEqual(current.Assignments, original.Assignments))
	mark(SectionBillingScenarios, len(ChangedScenarioKeys(current.Scenarios, original.Scenarios)) == 0)

	return changes
}

// AssignmentsEqual compares per appointment type as sets. A missing key
// equals an empty set.
func AssignmentsEqual(a, b model.PractitionerAssignments) bool {
	for _, k := range unionKeys(a, b) {
		if !slices.Equal(model.NormalizeIDs(a[k]), model.NormalizeIDs(b[k])) {
			return false
		}
	}
	return true
}

// ScenarioListsEqual compares two scenario lists regardless of order.
func ScenarioListsEqual(a, b []model.BillingScenario) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(sortedScenarios(a), sortedScenarios(b))
}

// ChangedScenarioKeys returns, in stable order, every key whose scenario
// list differs. A missing key equals an empty list.
func ChangedScenarioKeys(current, original model.BillingScenarios) []model.ScenarioKey {
	var keys []model.ScenarioKey
	for _, k := range unionKeys(current, original) {
		if !ScenarioListsEqual(current[k], original[k]) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, model.CompareScenarioKeys)
	return keys
}

func sortedScenarios(list []model.BillingScenario) []model.BillingScenario {
	out := slices.Clone(list)
	slices.SortFunc(out, model.CompareBillingScenarios)
	return out
}

func unionKeys[K comparable, V any](a, b map[K]V) []K {
	keys := make([]K, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
