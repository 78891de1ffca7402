package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/pkg/clinicapi"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
	"github.com/jwalitptl/clinic-settings/pkg/validator"
)

var tracer = otel.Tracer("github.com/jwalitptl/clinic-settings/internal/service/settings")

// Phase is the state of one save invocation.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseValidating     Phase = "validating"
	PhaseSavingSectionA Phase = "saving_clinic_settings"
	PhaseSavingSectionB Phase = "saving_practitioner_assignments"
	PhaseSavingSectionC Phase = "saving_billing_scenarios"
	PhaseReconciling    Phase = "reconciling"
	PhaseSuccess        Phase = "success"
	PhasePartialFailure Phase = "partial_failure"
)

// Remote is the clinic API surface the save path writes through.
type Remote interface {
	UpdateClinicSettings(ctx context.Context, settings model.ClinicSettings) error
	GetMembers(ctx context.Context) ([]model.Member, error)
	UpdatePractitionerAppointmentTypes(ctx context.Context, practitionerID int64, typeIDs []int64) error
	CreateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) (model.BillingScenarioRef, error)
	UpdateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) error
	DeleteBillingScenario(ctx context.Context, key model.ScenarioKey, scenarioID int64) error
}

type Options struct {
	// Concurrency bounds in-flight calls within one section. Values below 2
	// issue calls one at a time.
	Concurrency int
	// OnPhase is called on every phase transition.
	OnPhase func(Phase)
}

// Orchestrator saves the minimal set of remote mutations for a snapshot.
type Orchestrator struct {
	remote    Remote
	validator *validator.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics
	opts      Options
}

func NewOrchestrator(remote Remote, log *logger.Logger, m *metrics.Metrics, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		remote:    remote,
		validator: validator.New(),
		logger:    log,
		metrics:   m,
		opts:      opts,
	}
}

// SaveResult is the settled outcome of a save that passed validation.
type SaveResult struct {
	Phase  Phase            `json:"phase"`
	Report model.SaveReport `json:"report"`
	// Snapshot has succeeded operations promoted into its baseline and
	// created scenarios carrying their server ids.
	Snapshot model.Snapshot `json:"-"`
	// Changes are the sections still dirty after the save.
	Changes Changes `json:"remaining_changes"`
}

// ErrUnknownPractitioner marks an assignment naming an id that is not a
// practitioner of the clinic.
var ErrUnknownPractitioner = errors.New("not a practitioner of this clinic")

// SaveError is returned when at least one domain failed.
type SaveError struct {
	Report model.SaveReport
	causes []error
}

func (e *SaveError) Error() string {
	return "settings save failed: " + e.Report.Summary()
}

func (e *SaveError) Unwrap() []error {
	return e.causes
}

// Save validates snap, saves each dirty domain and reconciles the baseline.
// A validation error returns a nil result and issues no remote call. When any
// domain fails the result is still returned together with a *SaveError.
func (o *Orchestrator) Save(ctx context.Context, snap model.Snapshot) (*SaveResult, error) {
	ctx, span := tracer.Start(ctx, "settings.save")
	defer span.End()
	start := time.Now()

	o.enter(PhaseValidating)
	changes := DetectChanges(snap.Current, snap.Original)
	span.SetAttributes(
		attribute.Int64("clinic.id", snap.Current.Settings.ClinicID),
		attribute.StringSlice("settings.dirty_sections", sectionNames(changes)),
	)
	if err := o.validate(snap, changes); err != nil {
		recordFailure(span, err, "validation failed")
		o.enter(PhaseIdle)
		return nil, err
	}

	run := newSaveRun(snap)
	if !changes.Any() {
		return o.finish(ctx, run, start)
	}

	o.enter(PhaseSavingSectionA)
	if changes.Domain(model.DomainClinicSettings) {
		o.saveClinicSettings(ctx, run)
		if run.failed(model.DomainClinicSettings) &&
			!changes.Domain(model.DomainPractitionerAssignments) &&
			!changes.Domain(model.DomainBillingScenarios) {
			return o.finish(ctx, run, start)
		}
	}

	o.enter(PhaseSavingSectionB)
	if changes.Domain(model.DomainPractitionerAssignments) {
		o.saveAssignments(ctx, run)
	}

	o.enter(PhaseSavingSectionC)
	if changes.Domain(model.DomainBillingScenarios) {
		o.saveScenarios(ctx, run)
	}

	return o.finish(ctx, run, start)
}

func (o *Orchestrator) finish(ctx context.Context, run *saveRun, start time.Time) (*SaveResult, error) {
	o.enter(PhaseReconciling)
	next := reconcile(run)
	report := run.report()

	phase := PhaseSuccess
	if report.Failed() {
		phase = PhasePartialFailure
	}
	o.enter(phase)

	status := report.Status()
	for _, s := range report.Sections {
		if s.Status != model.SectionUnchanged {
			o.metrics.ObserveSection(string(s.Domain), string(s.Status))
		}
	}
	o.metrics.ObserveSave(string(status), time.Since(start))

	result := &SaveResult{
		Phase:    phase,
		Report:   report,
		Snapshot: next,
		Changes:  DetectChanges(next.Current, next.Original),
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("settings.save_status", string(status)))

	if phase == PhaseSuccess {
		o.logger.Info("settings saved",
			"clinic_id", next.Current.Settings.ClinicID,
			"duration_ms", time.Since(start).Milliseconds())
		return result, nil
	}

	err := &SaveError{Report: report, causes: run.causes}
	recordFailure(span, err, string(status))
	o.logger.Error(err, "settings save finished with failures",
		"clinic_id", next.Current.Settings.ClinicID,
		"status", string(status))
	return result, err
}

func (o *Orchestrator) enter(p Phase) {
	o.logger.Debug("settings save phase", "phase", string(p))
	if o.opts.OnPhase != nil {
		o.opts.OnPhase(p)
	}
}

func (o *Orchestrator) saveClinicSettings(ctx context.Context, run *saveRun) {
	ctx, span := tracer.Start(ctx, "settings.save.clinic_settings")
	defer span.End()

	sec := run.section(model.DomainClinicSettings)
	sec.Attempted = 1
	if err := ctx.Err(); err != nil {
		run.fail(sec, model.ItemError{Label: "clinic settings", Operation: opUpdate, Message: clinicapi.Message(err)}, err)
		return
	}
	if err := o.remote.UpdateClinicSettings(ctx, run.snap.Current.Settings); err != nil {
		recordFailure(span, err, "update clinic settings")
		run.fail(sec, model.ItemError{Label: "clinic settings", Operation: opUpdate, Message: clinicapi.Message(err)}, err)
		return
	}
	sec.Succeeded = 1
	run.settingsSaved = true
}

func (o *Orchestrator) saveAssignments(ctx context.Context, run *saveRun) {
	ctx, span := tracer.Start(ctx, "settings.save.practitioner_assignments")
	defer span.End()

	sec := run.section(model.DomainPractitionerAssignments)
	// Matched against the server's current member list, never the cache.
	members, err := o.remote.GetMembers(clinicapi.WithFreshMembers(ctx))
	if err != nil {
		recordFailure(span, err, "list members")
		sec.Attempted = 1
		run.fail(sec, model.ItemError{Label: "practitioners", Operation: "list", Message: clinicapi.Message(err)}, err)
		return
	}

	planned := planAssignmentUpdates(run.snap.Current.Assignments, run.snap.Original.Assignments, members)
	span.SetAttributes(attribute.Int("settings.practitioner_updates", len(planned)))
	sec.Attempted = len(planned)

	var updates []practitionerUpdate
	for _, u := range planned {
		if u.unmatched {
			run.fail(sec, model.ItemError{
				Label:     u.practitioner.DisplayName(),
				Operation: opUpdate,
				Message:   ErrUnknownPractitioner.Error(),
			}, fmt.Errorf("%w: %d", ErrUnknownPractitioner, u.practitioner.ID))
			continue
		}
		updates = append(updates, u)
	}

	errs := o.each(ctx, len(updates), func(ctx context.Context, i int) error {
		u := updates[i]
		return o.remote.UpdatePractitionerAppointmentTypes(ctx, u.practitioner.ID, u.typeIDs)
	})
	for i, u := range updates {
		if errs[i] != nil {
			run.fail(sec, model.ItemError{
				Label:     u.practitioner.DisplayName(),
				Operation: opUpdate,
				Message:   clinicapi.Message(errs[i]),
			}, errs[i])
			continue
		}
		sec.Succeeded++
		run.savedPractitioners = append(run.savedPractitioners, u.practitioner.ID)
	}
	if len(sec.Errors) > 0 {
		span.SetStatus(codes.Error, "practitioner updates failed")
	}
}

func (o *Orchestrator) saveScenarios(ctx context.Context, run *saveRun) {
	ctx, span := tracer.Start(ctx, "settings.save.billing_scenarios")
	defer span.End()

	sec := run.section(model.DomainBillingScenarios)
	plans := planScenarioOps(run.snap.Current.Scenarios, run.snap.Original.Scenarios)

	outcomes := make([][]scenarioOutcome, len(plans))
	errs := o.each(ctx, len(plans), func(ctx context.Context, i int) error {
		outcomes[i] = o.applyScenarioPlan(ctx, plans[i])
		return nil
	})

	for i, plan := range plans {
		sec.Attempted += len(plan.ops)
		for j, op := range plan.ops {
			out := scenarioOutcome{op: op}
			if outcomes[i] != nil {
				out = outcomes[i][j]
			} else {
				out.err = errs[i]
			}
			out.key = plan.key
			run.scenarioOutcomes = append(run.scenarioOutcomes, out)
			if out.err != nil {
				run.fail(sec, model.ItemError{
					Label:     op.scenario.Label(),
					Operation: op.kind,
					Message:   clinicapi.Message(out.err),
				}, out.err)
				continue
			}
			sec.Succeeded++
		}
	}
	span.SetAttributes(attribute.Int("settings.scenario_ops", sec.Attempted))
	if len(sec.Errors) > 0 {
		span.SetStatus(codes.Error, "billing scenario operations failed")
	}
}

// applyScenarioPlan runs one key's operations in order: deletes, updates,
// creates. A failed operation does not stop the ones after it.
func (o *Orchestrator) applyScenarioPlan(ctx context.Context, plan scenarioPlan) []scenarioOutcome {
	out := make([]scenarioOutcome, len(plan.ops))
	for i, op := range plan.ops {
		out[i].op = op
		if err := ctx.Err(); err != nil {
			out[i].err = err
			continue
		}
		switch op.kind {
		case opDelete:
			out[i].err = o.remote.DeleteBillingScenario(ctx, plan.key, op.scenario.ID)
		case opUpdate:
			out[i].err = o.remote.UpdateBillingScenario(ctx, plan.key, op.scenario)
		case opCreate:
			out[i].ref, out[i].err = o.remote.CreateBillingScenario(ctx, plan.key, op.scenario)
		}
	}
	return out
}

// each calls fn for every index and returns the per-index errors. Calls run
// one at a time unless Options.Concurrency allows more. Indexes reached after
// ctx is done fail with the context error without calling fn.
func (o *Orchestrator) each(ctx context.Context, n int, fn func(context.Context, int) error) []error {
	errs := make([]error, n)
	call := func(i int) {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			return
		}
		errs[i] = fn(ctx, i)
	}

	if o.opts.Concurrency < 2 || n < 2 {
		for i := 0; i < n; i++ {
			call(i)
		}
		return errs
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			call(i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func recordFailure(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

func sectionNames(c Changes) []string {
	sections := c.Sections()
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = string(s)
	}
	return out
}

// IsValidation reports whether err came from pre-save validation.
func IsValidation(err error) bool {
	var verrs validator.Errors
	return errors.As(err, &verrs)
}
