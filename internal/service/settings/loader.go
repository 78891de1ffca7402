package settings

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

// Source is the read side of the clinic API.
type Source interface {
	GetClinicSettings(ctx context.Context) (model.ClinicSettings, error)
	GetMembers(ctx context.Context) ([]model.Member, error)
	GetPractitionerAppointmentTypes(ctx context.Context, practitionerID int64) ([]int64, error)
	ListBillingScenarios(ctx context.Context, key model.ScenarioKey) ([]model.BillingScenario, error)
}

// Load reads the three domains into a fresh state. Assignments are only read
// once settings loaded, and scenarios only for assigned pairs.
func Load(ctx context.Context, src Source) (model.SettingsState, error) {
	ctx, span := tracer.Start(ctx, "settings.load")
	defer span.End()

	settings, err := src.GetClinicSettings(ctx)
	if err != nil {
		recordFailure(span, err, "get clinic settings")
		return model.SettingsState{}, fmt.Errorf("failed to load clinic settings: %w", err)
	}

	members, err := src.GetMembers(ctx)
	if err != nil {
		recordFailure(span, err, "get members")
		return model.SettingsState{}, fmt.Errorf("failed to load members: %w", err)
	}

	assignments := make(model.PractitionerAssignments)
	for _, m := range model.Practitioners(members) {
		typeIDs, err := src.GetPractitionerAppointmentTypes(ctx, m.ID)
		if err != nil {
			recordFailure(span, err, "get practitioner appointment types")
			return model.SettingsState{}, fmt.Errorf("failed to load appointment types for practitioner %d: %w", m.ID, err)
		}
		for _, typeID := range typeIDs {
			assignments[typeID] = append(assignments[typeID], m.ID)
		}
	}
	assignments = assignments.Normalize()

	scenarios := make(model.BillingScenarios)
	for _, typeID := range sortedKeys(assignments) {
		for _, pid := range assignments[typeID] {
			key := model.ScenarioKey{ServiceItemID: typeID, PractitionerID: pid}
			list, err := src.ListBillingScenarios(ctx, key)
			if err != nil {
				recordFailure(span, err, "list billing scenarios")
				return model.SettingsState{}, fmt.Errorf("failed to load billing scenarios for %s: %w", key, err)
			}
			if len(list) > 0 {
				scenarios[key] = list
			}
		}
	}

	return model.SettingsState{
		Settings:    settings,
		Assignments: assignments,
		Scenarios:   scenarios,
	}, nil
}

func sortedKeys(a model.PractitionerAssignments) []int64 {
	keys := make([]int64, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	return model.NormalizeIDs(keys)
}
