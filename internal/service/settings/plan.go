package settings

import (
	"slices"

	"github.com/jwalitptl/clinic-settings/internal/model"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// saveRun collects what happened during one save.
type saveRun struct {
	snap     model.Snapshot
	sections map[model.Domain]*model.SectionReport
	causes   []error

	settingsSaved      bool
	savedPractitioners []int64
	scenarioOutcomes   []scenarioOutcome
}

func newSaveRun(snap model.Snapshot) *saveRun {
	return &saveRun{
		snap:     snap,
		sections: make(map[model.Domain]*model.SectionReport, len(model.Domains)),
	}
}

// section returns the report for d, creating it on first use.
func (r *saveRun) section(d model.Domain) *model.SectionReport {
	sec, ok := r.sections[d]
	if !ok {
		sec = &model.SectionReport{Domain: d}
		r.sections[d] = sec
	}
	return sec
}

func (r *saveRun) fail(sec *model.SectionReport, item model.ItemError, cause error) {
	sec.Errors = append(sec.Errors, item)
	r.causes = append(r.causes, cause)
}

func (r *saveRun) failed(d model.Domain) bool {
	sec, ok := r.sections[d]
	return ok && len(sec.Errors) > 0
}

// attempted reports whether d was saved in this run.
func (r *saveRun) attempted(d model.Domain) bool {
	_, ok := r.sections[d]
	return ok
}

func (r *saveRun) report() model.SaveReport {
	out := model.SaveReport{Sections: make([]model.SectionReport, 0, len(model.Domains))}
	for _, d := range model.Domains {
		sec, ok := r.sections[d]
		if !ok {
			out.Sections = append(out.Sections, model.SectionReport{Domain: d, Status: model.SectionUnchanged})
			continue
		}
		s := *sec
		s.Status = model.SectionSucceeded
		if len(s.Errors) > 0 {
			s.Status = model.SectionFailed
		}
		out.Sections = append(out.Sections, s)
	}
	return out
}

type practitionerUpdate struct {
	practitioner model.Member
	typeIDs      []int64
	// unmatched is set when no practitioner member has this id. Such an
	// update is reported as failed and never sent.
	unmatched bool
}

// planAssignmentUpdates returns one update per practitioner id whose type set
// changed, in id order.
func planAssignmentUpdates(current, original model.PractitionerAssignments, members []model.Member) []practitionerUpdate {
	cur := current.ByPractitioner()
	orig := original.ByPractitioner()

	byID := make(map[int64]model.Member, len(members))
	for _, m := range members {
		if _, ok := byID[m.ID]; !ok || m.IsPractitioner() {
			byID[m.ID] = m
		}
	}

	pids := unionKeys(cur, orig)
	slices.Sort(pids)

	var updates []practitionerUpdate
	for _, pid := range pids {
		next := cur[pid]
		if next == nil {
			next = []int64{}
		}
		if slices.Equal(next, orig[pid]) {
			continue
		}
		m, ok := byID[pid]
		if !ok {
			m = model.Member{ID: pid}
		}
		updates = append(updates, practitionerUpdate{
			practitioner: m,
			typeIDs:      next,
			unmatched:    !m.IsPractitioner(),
		})
	}
	return updates
}

type scenarioOp struct {
	kind     string
	scenario model.BillingScenario
	// index into the current list for creates and updates
	index int
}

type scenarioPlan struct {
	key model.ScenarioKey
	ops []scenarioOp
}

type scenarioOutcome struct {
	op  scenarioOp
	key model.ScenarioKey
	ref model.BillingScenarioRef
	err error
}

// planScenarioOps diffs every changed key. Ids only in the baseline are
// deleted, persisted ids whose content changed are updated, and temporary
// or unknown ids are created.
func planScenarioOps(current, original model.BillingScenarios) []scenarioPlan {
	var plans []scenarioPlan
	for _, key := range ChangedScenarioKeys(current, original) {
		cur, orig := current[key], original[key]

		origByID := make(map[int64]model.BillingScenario, len(orig))
		for _, s := range orig {
			origByID[s.ID] = s
		}
		kept := make(map[int64]bool, len(cur))
		for _, s := range cur {
			if _, ok := origByID[s.ID]; ok && !s.IsTemporary() {
				kept[s.ID] = true
			}
		}

		var deletes, updates, creates []scenarioOp
		for _, s := range sortedScenarios(orig) {
			if !kept[s.ID] {
				deletes = append(deletes, scenarioOp{kind: opDelete, scenario: s, index: -1})
			}
		}
		claimed := make(map[int64]bool, len(cur))
		for i, s := range cur {
			prev, ok := origByID[s.ID]
			if ok && !s.IsTemporary() && !claimed[s.ID] {
				claimed[s.ID] = true
				if prev != s {
					updates = append(updates, scenarioOp{kind: opUpdate, scenario: s, index: i})
				}
				continue
			}
			creates = append(creates, scenarioOp{kind: opCreate, scenario: s, index: i})
		}

		ops := make([]scenarioOp, 0, len(deletes)+len(updates)+len(creates))
		ops = append(ops, deletes...)
		ops = append(ops, updates...)
		ops = append(ops, creates...)
		if len(ops) > 0 {
			plans = append(plans, scenarioPlan{key: key, ops: ops})
		}
	}
	return plans
}
