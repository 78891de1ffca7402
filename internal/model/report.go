package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Domain is one of the independently saved groups of settings.
type Domain string

const (
	DomainClinicSettings          Domain = "clinic_settings"
	DomainPractitionerAssignments Domain = "practitioner_assignments"
	DomainBillingScenarios        Domain = "billing_scenarios"
)

// Domains lists the domains in save order.
var Domains = []Domain{DomainClinicSettings, DomainPractitionerAssignments, DomainBillingScenarios}

func (d Domain) Title() string {
	switch d {
	case DomainClinicSettings:
		return "clinic settings"
	case DomainPractitionerAssignments:
		return "practitioner assignments"
	case DomainBillingScenarios:
		return "billing scenarios"
	}
	return string(d)
}

type SectionStatus string

const (
	SectionUnchanged SectionStatus = "unchanged"
	SectionSucceeded SectionStatus = "succeeded"
	SectionFailed    SectionStatus = "failed"
)

// ItemError describes one failed remote call.
type ItemError struct {
	Label     string `json:"label"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
}

func (e ItemError) String() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s (%s): %s", e.Label, e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Label, e.Message)
}

type SectionReport struct {
	Domain    Domain        `json:"domain"`
	Status    SectionStatus `json:"status"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Errors    []ItemError   `json:"errors,omitempty"`
}

// SaveReport is the combined outcome of one save, one entry per domain.
type SaveReport struct {
	Sections []SectionReport `json:"sections"`
}

func (r SaveReport) Section(d Domain) (SectionReport, bool) {
	for _, s := range r.Sections {
		if s.Domain == d {
			return s, true
		}
	}
	return SectionReport{}, false
}

func (r SaveReport) Failed() bool {
	for _, s := range r.Sections {
		if s.Status == SectionFailed {
			return true
		}
	}
	return false
}

// Status is partial_failure when anything was saved next to a failure, and
// failed when nothing was.
func (r SaveReport) Status() SaveStatus {
	var failed, succeeded bool
	for _, s := range r.Sections {
		switch s.Status {
		case SectionFailed:
			failed = true
			if s.Succeeded > 0 {
				succeeded = true
			}
		case SectionSucceeded:
			succeeded = true
		}
	}
	switch {
	case !failed:
		return SaveStatusSuccess
	case succeeded:
		return SaveStatusPartialFailure
	default:
		return SaveStatusFailed
	}
}

// Summary joins every failure into one message.
func (r SaveReport) Summary() string {
	var parts []string
	for _, s := range r.Sections {
		if s.Status != SectionFailed {
			continue
		}
		msgs := make([]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			msgs = append(msgs, e.String())
		}
		parts = append(parts, fmt.Sprintf("%s failed: %s", s.Domain.Title(), strings.Join(msgs, "; ")))
	}
	return strings.Join(parts, " | ")
}

type SaveStatus string

const (
	SaveStatusSuccess        SaveStatus = "success"
	SaveStatusPartialFailure SaveStatus = "partial_failure"
	SaveStatusFailed         SaveStatus = "failed"
	SaveStatusInvalid        SaveStatus = "invalid"
)

// SaveOutcome is handed to save listeners once a save settles.
type SaveOutcome struct {
	ClinicID   int64      `json:"clinic_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Status     SaveStatus `json:"status"`
	Report     SaveReport `json:"report"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}
