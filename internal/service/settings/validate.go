package settings

import (
	"fmt"
	"slices"
	"time"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/pkg/validator"
)

const hoursLayout = "15:04"

// validate checks the dirty domains of the current state. Clean domains are
// not revalidated so stale server data cannot block an unrelated save.
func (o *Orchestrator) validate(snap model.Snapshot, changes Changes) error {
	var errs validator.Errors
	cur := snap.Current

	if changes.Domain(model.DomainClinicSettings) {
		fe, err := o.validator.Struct(cur.Settings, "settings")
		if err != nil {
			return err
		}
		errs = append(errs, fe...)
		errs = append(errs, validateBusinessHours(cur.Settings.BusinessHours)...)
	}

	if changes.Domain(model.DomainPractitionerAssignments) {
		errs = append(errs, validateAssignments(cur.Assignments)...)
	}

	if changes.Domain(model.DomainBillingScenarios) {
		for _, key := range ChangedScenarioKeys(cur.Scenarios, snap.Original.Scenarios) {
			fe, err := o.validateScenarios(key, cur.Scenarios[key])
			if err != nil {
				return err
			}
			errs = append(errs, fe...)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	errs.Sort()
	return errs
}

func validateBusinessHours(hours map[string]model.DayHours) validator.Errors {
	var errs validator.Errors
	for day, h := range hours {
		field := "settings.business_hours." + day
		if !slices.Contains(model.Weekdays, day) {
			errs = append(errs, validator.FieldError{Field: field, Tag: "weekday", Message: "is not a weekday"})
			continue
		}
		if h.Closed {
			continue
		}
		open, err := time.Parse(hoursLayout, h.Open)
		if err != nil {
			errs = append(errs, validator.FieldError{Field: field + ".open", Tag: "time", Message: "must be a HH:MM time"})
			continue
		}
		closing, err := time.Parse(hoursLayout, h.Close)
		if err != nil {
			errs = append(errs, validator.FieldError{Field: field + ".close", Tag: "time", Message: "must be a HH:MM time"})
			continue
		}
		if !closing.After(open) {
			errs = append(errs, validator.FieldError{Field: field + ".close", Tag: "after_open", Message: "must be after the opening time"})
		}
	}
	return errs
}

// validateAssignments rejects assignments to appointment types that were
// never saved, since the clinic API has no id to attach them to.
func validateAssignments(a model.PractitionerAssignments) validator.Errors {
	var errs validator.Errors
	for typeID, pids := range a {
		field := fmt.Sprintf("practitioner_assignments[%d]", typeID)
		if typeID <= 0 && len(pids) > 0 {
			errs = append(errs, validator.FieldError{
				Field:   field,
				Tag:     "persisted",
				Message: "appointment type must be saved before practitioners can be assigned",
			})
		}
		for _, pid := range pids {
			if pid <= 0 {
				errs = append(errs, validator.FieldError{Field: field, Tag: "practitioner", Message: "contains an invalid practitioner id"})
				break
			}
		}
	}
	return errs
}

func (o *Orchestrator) validateScenarios(key model.ScenarioKey, list []model.BillingScenario) (validator.Errors, error) {
	prefix := fmt.Sprintf("billing_scenarios[%s]", key)
	var errs validator.Errors
	if len(list) > 0 && (key.ServiceItemID <= 0 || key.PractitionerID <= 0) {
		errs = append(errs, validator.FieldError{
			Field:   prefix,
			Tag:     "persisted",
			Message: "service item and practitioner must be saved before adding billing scenarios",
		})
	}

	defaults := 0
	for i, s := range list {
		fe, err := o.validator.Struct(s, fmt.Sprintf("%s[%d]", prefix, i))
		if err != nil {
			return nil, err
		}
		errs = append(errs, fe...)
		if s.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, validator.FieldError{Field: prefix, Tag: "single_default", Message: "can have only one default scenario"})
	}
	return errs, nil
}
