package daemon

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/events"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/observability"
	"git.home.luguber.info/inful/dropsync/internal/orchestrator"
	"git.home.luguber.info/inful/dropsync/internal/state"
	"git.home.luguber.info/inful/dropsync/internal/tracker"
)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	CycleID          string                       `json:"cycle_id"`
	StartedAt        time.Time                    `json:"started_at"`
	Duration         time.Duration                `json:"duration_ns"`
	Packages         int                          `json:"packages"`
	Candidates       int                          `json:"candidates"`
	ScanErrors       int                          `json:"scan_errors"`
	NamingViolations int                          `json:"naming_violations"`
	Outcomes         map[orchestrator.Outcome]int `json:"outcomes"`
	Cancelled        bool                         `json:"cancelled"`
}

// RunOnce runs a single poll cycle synchronously. The error reports
// cancellation or state files that could not be written; per-package
// failures are logged and counted in the report instead.
func (d *Daemon) RunOnce(ctx context.Context) (*CycleReport, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	defer d.setStatus(StatusIdle)

	report := &CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: d.clock.Now(),
		Outcomes:  make(map[orchestrator.Outcome]int),
	}
	ctx = observability.WithCycleID(ctx, report.CycleID)
	observability.DebugContext(ctx, "Poll cycle started", logfields.Count(len(d.sources)))

	var errs []error
	for _, src := range d.sources {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := d.runSource(observability.WithSource(ctx, src.path), src, report); err != nil {
			errs = append(errs, err)
		}
	}

	report.Duration = d.clock.Since(report.StartedAt)
	result := "ok"
	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		result = "cancelled"
		errs = append(errs, err)
	} else if len(errs) > 0 {
		result = "error"
	}
	d.recorder.ObserveCycleDuration(report.Duration)
	d.recorder.IncCycle(result)
	d.lastCycle.Store(report)

	observability.InfoContext(ctx, "Poll cycle finished",
		logfields.Outcome(result),
		slog.Int("packages", report.Packages),
		slog.Int("candidates", report.Candidates),
		slog.Int("synced", report.Outcomes[orchestrator.OutcomeSynced]),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	return report, errors.Join(errs...)
}

// scheduledCycle is the gocron task body.
func (d *Daemon) scheduledCycle(ctx context.Context) {
	if _, err := d.RunOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Info("Poll cycle interrupted by shutdown")
			return
		}
		slog.Error("Poll cycle failed", logfields.Error(err))
	}
}

// runSource observes every package of one source, persists the observations
// and then attempts the candidates in identity order.
func (d *Daemon) runSource(ctx context.Context, src *sourceRuntime, report *CycleReport) error {
	d.setStatus(StatusScanning)
	candidates, listed, obsErr := d.observeSource(ctx, src, report)
	if listed {
		if err := src.store.Flush(); err != nil {
			observability.ErrorContext(ctx, "Failed to persist observations", logfields.Error(err))
			return err
		}
	}
	if obsErr != nil {
		return obsErr
	}

	d.setStatus(StatusSyncing)
	slices.SortFunc(candidates, func(a, b candidate) int { return strings.Compare(a.identity, b.identity) })
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		d.syncOne(observability.WithIdentity(ctx, c.identity), src, c, report)
	}
	d.updateGauges(src)
	return nil
}

// candidate is a package ready for a sync attempt. path is the folder as
// listed, which may differ from the NFC identity.
type candidate struct {
	identity string
	path     string
}

// observeSource returns the packages that are sync candidates after this
// observation. A source that cannot be listed is logged and skipped, and
// listed is false so no state file is created for it.
func (d *Daemon) observeSource(ctx context.Context, src *sourceRuntime, report *CycleReport) (candidates []candidate, listed bool, err error) {
	tops, err := afero.ReadDir(d.fs, src.path)
	if err != nil {
		report.ScanErrors++
		d.recorder.IncScanError()
		scanErr := derrors.ScanError("source directory cannot be listed").WithCause(err).WithContext("path", src.path).Build()
		observability.WarnContext(ctx, "Source directory unavailable", logfields.Error(scanErr))
		return nil, false, nil
	}

	parser := d.namingParser()
	for _, top := range tops {
		if !top.IsDir() {
			continue
		}
		owner, err := parser.Parse(top.Name())
		if err != nil {
			report.NamingViolations++
			d.recorder.IncNamingViolation()
			d.warnOnce(ctx, src.path, top.Name(), err)
			continue
		}

		topPath := filepath.Join(src.path, top.Name())
		pkgs, err := afero.ReadDir(d.fs, topPath)
		if err != nil {
			report.ScanErrors++
			d.recorder.IncScanError()
			observability.WarnContext(ctx, "Project folder unavailable", logfields.Path(topPath), logfields.Error(err))
			continue
		}
		for _, pkg := range pkgs {
			if !pkg.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return candidates, true, err
			}
			identity := naming.Identity(top.Name(), pkg.Name())
			pkgPath := filepath.Join(topPath, pkg.Name())
			if d.observePackage(observability.WithIdentity(ctx, identity), src, identity, owner, pkgPath, report) {
				candidates = append(candidates, candidate{identity: identity, path: pkgPath})
			}
		}
	}
	return candidates, true, nil
}

func (d *Daemon) observePackage(ctx context.Context, src *sourceRuntime, identity string, owner naming.Owner, pkgPath string, report *CycleReport) bool {
	fp, _, err := d.collector.Fingerprint(pkgPath)
	if err != nil {
		report.ScanErrors++
		d.recorder.IncScanError()
		observability.WarnContext(ctx, "Package scan failed, retrying next cycle", logfields.Error(err))
		return false
	}
	report.Packages++

	obs := src.tracker.Observe(identity, owner, fp)
	d.recorder.IncObservation(string(obs.Change))
	observability.DebugContext(ctx, "Package observed",
		slog.String("change", string(obs.Change)),
		logfields.StableChecks(obs.StableChecks),
		logfields.Fingerprint(fp))

	switch obs.Change {
	case tracker.ChangeNew:
		d.emit(ctx, src, events.TypeDetected, identity, map[string]string{
			"project":     owner.Project,
			"user":        owner.User,
			"fingerprint": fp,
		})
	case tracker.ChangeChanged:
		d.emit(ctx, src, events.TypeChanged, identity, map[string]string{
			"fingerprint": fp,
			"during":      "scan",
		})
	}
	if obs.BecameStable {
		d.emit(ctx, src, events.TypeStable, identity, map[string]string{
			"stable_checks": strconv.Itoa(obs.StableChecks),
			"fingerprint":   fp,
		})
	}
	if obs.Candidate {
		report.Candidates++
	}
	return obs.Candidate
}

func (d *Daemon) syncOne(ctx context.Context, src *sourceRuntime, c candidate, report *CycleReport) {
	outcome, err := src.orch.TrySync(ctx, c.identity, c.path)
	report.Outcomes[outcome]++
	if err == nil {
		observability.DebugContext(ctx, "Sync attempt finished", logfields.Outcome(string(outcome)))
		return
	}
	switch outcome {
	case orchestrator.OutcomeSkipped:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		observability.WarnContext(ctx, "Sync attempt skipped", logfields.Error(err))
	case orchestrator.OutcomeSynced:
		observability.ErrorContext(ctx, "Copy verified but state could not be written", logfields.Error(err))
	default:
		// Failures are already reported through the event sinks.
		observability.DebugContext(ctx, "Sync attempt failed", logfields.Outcome(string(outcome)), logfields.Error(err))
	}
}

func (d *Daemon) updateGauges(src *sourceRuntime) {
	budget := d.policy.MaxCopyRetries()
	counts := map[state.Status]int{state.StatusPending: 0, state.StatusSynced: 0, state.StatusFailed: 0}
	for _, e := range src.store.All() {
		counts[e.Record.Status(budget)]++
	}
	for st, n := range counts {
		d.recorder.SetPackages(src.path, string(st), n)
	}
}

// warnOnce logs a naming violation the first time a folder name is seen.
func (d *Daemon) warnOnce(ctx context.Context, source, name string, err error) {
	key := source + "\x00" + name
	if _, seen := d.warned[key]; seen {
		return
	}
	d.warned[key] = struct{}{}
	observability.WarnContext(ctx, "Skipping folder that does not match the naming convention",
		logfields.Name(name), logfields.Error(err))
}

func (d *Daemon) emit(ctx context.Context, src *sourceRuntime, typ events.Type, identity string, attrs map[string]string) {
	e := events.Event{
		Type:     typ,
		Identity: identity,
		Source:   src.path,
		CycleID:  observability.GetContext(ctx).CycleID,
		Time:     d.clock.Now(),
		Attrs:    attrs,
	}
	if err := d.events.Emit(ctx, e); err != nil {
		observability.WarnContext(ctx, "Event sink failed", slog.String("event", string(typ)), logfields.Error(err))
	}
}
