package settings

import (
	"slices"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

// reconcile builds the post-save snapshot. Created scenarios get their server
// ids in the current state. Only confirmed operations are promoted into the
// baseline, so the next diff re-targets exactly the unsaved items.
func reconcile(run *saveRun) model.Snapshot {
	next := run.snap.Clone()

	for _, out := range run.scenarioOutcomes {
		if out.op.kind == opCreate && out.err == nil {
			next.Current.Scenarios[out.key][out.op.index].ID = out.ref.ID
		}
	}

	if run.settingsSaved {
		next.Original.Settings = next.Current.Settings.Clone()
	}

	// Assignments are promoted per confirmed practitioner only. Once nothing
	// differs the baseline takes current's exact shape.
	for _, pid := range run.savedPractitioners {
		next.Original.Assignments = promotePractitioner(next.Original.Assignments, next.Current.Assignments, pid)
	}
	if run.attempted(model.DomainPractitionerAssignments) &&
		AssignmentsEqual(next.Current.Assignments, next.Original.Assignments) {
		next.Original.Assignments = next.Current.Assignments.Clone()
	}

	if run.attempted(model.DomainBillingScenarios) {
		if !run.failed(model.DomainBillingScenarios) {
			next.Original.Scenarios = next.Current.Scenarios.Clone()
		} else {
			next.Original.Scenarios = promoteScenarioOps(next.Original.Scenarios, next.Current.Scenarios, run.scenarioOutcomes)
		}
	}

	return next
}

// promotePractitioner copies one practitioner's assignments from current
// into the baseline.
func promotePractitioner(original, current model.PractitionerAssignments, pid int64) model.PractitionerAssignments {
	out := original.Clone()
	if out == nil {
		out = make(model.PractitionerAssignments)
	}
	for typeID, pids := range out {
		out[typeID] = slices.DeleteFunc(pids, func(p int64) bool { return p == pid })
	}
	for typeID, pids := range current {
		if slices.Contains(pids, pid) {
			out[typeID] = model.NormalizeIDs(append(out[typeID], pid))
		}
	}
	for typeID, pids := range out {
		if len(pids) == 0 {
			delete(out, typeID)
		}
	}
	return out
}

// promoteScenarioOps applies successful operations to the baseline.
func promoteScenarioOps(original, current model.BillingScenarios, outcomes []scenarioOutcome) model.BillingScenarios {
	out := original.Clone()
	if out == nil {
		out = make(model.BillingScenarios)
	}
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		list := out[o.key]
		switch o.op.kind {
		case opDelete:
			list = slices.DeleteFunc(list, func(s model.BillingScenario) bool { return s.ID == o.op.scenario.ID })
		case opUpdate:
			saved := current[o.key][o.op.index]
			for i := range list {
				if list[i].ID == saved.ID {
					list[i] = saved
				}
			}
		case opCreate:
			list = append(list, current[o.key][o.op.index])
		}
		out[o.key] = list
	}
	for key, list := range out {
		if len(list) == 0 {
			delete(out, key)
		}
	}
	return out
}
