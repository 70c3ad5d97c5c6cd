// Package orchestrator copies stable packages to their destinations and
// records the result.
//
// A sync attempt copies the package incrementally to every resolved
// destination, removes destination files the source no longer has, re-lists
// each destination and compares it with the source listing. Any failure spends one unit of the retry budget; once the budget is
// used up the package is reported as permanently failed and never attempted
// again. Before a success is recorded the source is scanned once more, and a
// package that changed during the copy is demoted back to unstable.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/destination"
	"git.home.luguber.info/inful/dropsync/internal/events"
	"git.home.luguber.info/inful/dropsync/internal/fingerprint"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/fsutil"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/metrics"
	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/observability"
	"git.home.luguber.info/inful/dropsync/internal/state"
	"git.home.luguber.info/inful/dropsync/internal/tracker"
)

// Outcome is the result of one TrySync call.
type Outcome string

const (
	OutcomeSynced          Outcome = "synced"
	OutcomeRetryScheduled  Outcome = "retry_scheduled"
	OutcomeFailedPermanent Outcome = "failed_permanent"
	OutcomeChanged         Outcome = "changed"
	OutcomeSkipped         Outcome = "skipped"
)

// Resolver finds the destinations of a package.
type Resolver interface {
	Resolve(owner naming.Owner, pkg string) ([]destination.Target, error)
}

// Deps are the collaborators of an Orchestrator. Events, Recorder and Clock are optional.
type Deps struct {
	Source    string
	FS        afero.Fs
	Store     *state.Store
	Tracker   *tracker.Tracker
	Policy    *tracker.Policy
	Collector *fingerprint.Collector
	Resolver  Resolver
	Events    events.Sink
	Recorder  metrics.Recorder
	Clock     clockwork.Clock
}

// Orchestrator runs sync attempts for the packages of one source directory.
type Orchestrator struct {
	Deps
}

// New creates an orchestrator, filling in defaults for optional dependencies.
func New(deps Deps) *Orchestrator {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Collector == nil {
		deps.Collector = fingerprint.NewCollector(deps.FS)
	}
	return &Orchestrator{Deps: deps}
}

// TrySync attempts to copy one package. srcPath is the package folder as it
// was listed on disk; identities are NFC-normalized and may not spell the
// folder name the way the filesystem stores it. An empty srcPath is derived
// from the identity.
//
// The returned error explains a non-synced outcome or reports a failure to
// persist the record; it is nil for synced and for plain skips.
//
// Cancellation is honoured between destinations only. A cancelled attempt
// leaves the record untouched.
func (o *Orchestrator) TrySync(ctx context.Context, identity, srcPath string) (Outcome, error) {
	rec, ok := o.Store.Get(identity)
	if !ok || rec.IsSynced || rec.Failed(o.Policy.MaxCopyRetries()) || rec.StableChecks < o.Policy.NumberOfChecks() {
		return OutcomeSkipped, nil
	}
	top, pkg, ok := naming.SplitIdentity(identity)
	if !ok {
		return OutcomeSkipped, derrors.InternalError("malformed identity").WithContext("identity", identity).Build()
	}
	ctx = observability.WithIdentity(ctx, identity)
	if srcPath == "" {
		srcPath = filepath.Join(o.Source, top, pkg)
	}

	// The folder must still match the fingerprint that made it stable.
	startFP, srcListing, err := o.Collector.Fingerprint(srcPath)
	if err != nil {
		o.Recorder.IncScanError()
		return OutcomeSkipped, err
	}
	if startFP != rec.Checksum {
		return o.demote(ctx, identity, startFP)
	}

	owner := naming.Owner{Project: rec.ProjectName, User: rec.UserName}
	targets, err := o.Resolver.Resolve(owner, pkg)
	if err != nil {
		return o.fail(ctx, identity, rec, err)
	}

	o.emit(ctx, events.TypeCopyStarted, identity, map[string]string{
		"destinations": strconv.Itoa(len(targets)),
		"fingerprint":  startFP,
	})

	start := o.Clock.Now()
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			observability.WarnContext(ctx, "Sync interrupted between destinations", logfields.Error(err))
			return OutcomeSkipped, err
		}
		if err := o.copyAndVerify(ctx, srcPath, srcListing, target); err != nil {
			o.Recorder.ObserveCopyDuration(o.Clock.Since(start), false)
			// A folder that changed under the copy is not the destination's fault.
			if fp, changed := o.sourceChanged(srcPath, startFP); changed {
				return o.demote(ctx, identity, fp)
			}
			return o.fail(ctx, identity, rec, err)
		}
	}
	o.Recorder.ObserveCopyDuration(o.Clock.Since(start), true)

	endFP, _, err := o.Collector.Fingerprint(srcPath)
	if err != nil {
		o.Recorder.IncScanError()
		return OutcomeSkipped, err
	}
	if endFP != startFP {
		return o.demote(ctx, identity, endFP)
	}

	projectPaths := make([]string, 0, len(targets))
	packagePaths := make([]string, 0, len(targets))
	for _, t := range targets {
		projectPaths = append(projectPaths, t.ProjectPath)
		packagePaths = append(packagePaths, t.PackagePath)
	}
	rec.IsSynced = true
	rec.CopiedAt = o.Clock.Now()
	rec.DestinationProjectPath = state.JoinPaths(projectPaths)
	rec.DestinationPackagePath = state.JoinPaths(packagePaths)
	if err := o.Store.Upsert(identity, rec); err != nil {
		return OutcomeSynced, err
	}

	o.Recorder.IncSyncOutcome(string(OutcomeSynced))
	o.emit(ctx, events.TypeCopyVerified, identity, map[string]string{
		"destination": rec.DestinationPackagePath,
		"files":       strconv.Itoa(len(srcListing)),
		"bytes":       strconv.FormatInt(srcListing.TotalSize(), 10),
	})
	return OutcomeSynced, nil
}

func (o *Orchestrator) copyAndVerify(ctx context.Context, srcPath string, srcListing fingerprint.Listing, target destination.Target) error {
	stats, err := fsutil.CopyTree(o.FS, srcPath, target.PackagePath)
	o.Recorder.AddCopiedFiles(stats.Copied, stats.Skipped, stats.Bytes)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDestination, "copy to destination failed").
			Budgeted().
			WithContext("destination", target.PackagePath).
			Build()
	}
	// The package directory belongs to dropsync; files the source no longer
	// has are leftovers of an earlier attempt.
	keep := make(map[string]struct{}, len(srcListing))
	for _, e := range srcListing {
		keep[e.Path] = struct{}{}
	}
	removed, err := fsutil.Prune(o.FS, target.PackagePath, func(rel string) bool {
		_, ok := keep[fingerprint.NormalizePath(rel)]
		return ok
	})
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDestination, "stale destination files cannot be removed").
			Budgeted().
			WithContext("destination", target.PackagePath).
			Build()
	}
	observability.DebugContext(ctx, "Copied package files",
		logfields.Destination(target.PackagePath),
		slog.Int("copied", stats.Copied),
		slog.Int("skipped", stats.Skipped),
		slog.Int("removed", removed))

	dstListing, err := o.Collector.Scan(target.PackagePath)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDestination, "destination cannot be listed").
			Budgeted().
			WithContext("destination", target.PackagePath).
			Build()
	}
	if diff := dstListing.Diff(srcListing); !diff.Empty() {
		return derrors.CopyVerificationError(fmt.Sprintf("destination does not match source: %s", diff)).
			WithContext("destination", target.PackagePath).
			WithContext("missing", diff.Missing).
			WithContext("mismatched", diff.Mismatched).
			WithContext("extra", diff.Extra).
			Build()
	}
	return nil
}

// sourceChanged rescans the source. A folder that can no longer be scanned counts as unchanged.
func (o *Orchestrator) sourceChanged(srcPath, startFP string) (string, bool) {
	fp, _, err := o.Collector.Fingerprint(srcPath)
	if err != nil || fp == startFP {
		return startFP, false
	}
	return fp, true
}

// fail spends one unit of the retry budget.
func (o *Orchestrator) fail(ctx context.Context, identity string, rec state.Record, cause error) (Outcome, error) {
	rec.CopyRetryCount++
	rec.ClearSyncAttempt()
	budget := o.Policy.MaxCopyRetries()

	outcome := OutcomeRetryScheduled
	typ := events.TypeCopyFailed
	if rec.CopyRetryCount >= budget {
		outcome = OutcomeFailedPermanent
		typ = events.TypeSyncFailedPermanent
	}

	if err := o.Store.Upsert(identity, rec); err != nil {
		observability.ErrorContext(ctx, "Failed to persist retry count", logfields.Error(err))
	}
	if outcome == OutcomeFailedPermanent {
		observability.ErrorContext(ctx, "Copy retry budget spent, package will not be copied again",
			logfields.RetryCount(rec.CopyRetryCount), logfields.Error(cause))
	} else {
		observability.WarnContext(ctx, "Copy attempt failed, retrying next cycle",
			logfields.RetryCount(rec.CopyRetryCount), logfields.Error(cause))
	}
	o.Recorder.IncSyncOutcome(string(outcome))
	o.emit(ctx, typ, identity, map[string]string{
		"error":       cause.Error(),
		"retry_count": strconv.Itoa(rec.CopyRetryCount),
		"max_retries": strconv.Itoa(budget),
	})
	return outcome, cause
}

func (o *Orchestrator) demote(ctx context.Context, identity, fingerprint string) (Outcome, error) {
	rec, _ := o.Tracker.Demote(identity, fingerprint)
	if err := o.Store.Flush(); err != nil {
		observability.ErrorContext(ctx, "Failed to persist demotion", logfields.Error(err))
	}
	o.Recorder.IncSyncOutcome(string(OutcomeChanged))
	o.emit(ctx, events.TypeChanged, identity, map[string]string{
		"fingerprint":   fingerprint,
		"stable_checks": strconv.Itoa(rec.StableChecks),
		"during":        "sync",
	})
	return OutcomeChanged, nil
}

func (o *Orchestrator) emit(ctx context.Context, typ events.Type, identity string, attrs map[string]string) {
	e := events.Event{
		Type:     typ,
		Identity: identity,
		Source:   o.Source,
		CycleID:  observability.GetContext(ctx).CycleID,
		Time:     o.Clock.Now(),
		Attrs:    attrs,
	}
	if err := o.Events.Emit(ctx, e); err != nil {
		observability.WarnContext(ctx, "Event sink failed", slog.String("event", string(typ)), logfields.Error(err))
	}
}
