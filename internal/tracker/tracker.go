// Package tracker decides when a package folder has stopped changing.
//
// Every poll feeds the folder's current fingerprint to Observe. An unchanged
// fingerprint raises the record's stable_checks counter; any change resets it
// to 1 and, for an unsynced record, drops what an earlier sync attempt left
// behind. Synced records keep their copy time and destinations. A record becomes a
// copy candidate once the counter reaches the policy threshold, as long as it
// is neither synced nor out of retries.
package tracker

import (
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/state"
)

// Change classifies an observation.
type Change string

const (
	ChangeNew       Change = "new"
	ChangeUnchanged Change = "unchanged"
	ChangeChanged   Change = "changed"
)

// Observation is the result of feeding one fingerprint to the tracker.
type Observation struct {
	Change       Change
	StableChecks int
	// BecameStable is set on the single observation where the counter reaches the threshold.
	BecameStable bool
	// Candidate is set on every observation at or above the threshold while
	// the record is unsynced and not failed.
	Candidate bool
	Record    state.Record
}

// Tracker applies observations to the records of one state store.
// Observe and Demote only update memory; the caller flushes the store.
type Tracker struct {
	store  *state.Store
	policy *Policy
	clock  clockwork.Clock
}

// New creates a tracker over store.
func New(store *state.Store, policy *Policy, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: store, policy: policy, clock: clock}
}

// Observe records the current fingerprint of a package folder.
func (t *Tracker) Observe(identity string, owner naming.Owner, fingerprint string) Observation {
	now := t.clock.Now()
	threshold := t.policy.NumberOfChecks()

	rec, seen := t.store.Get(identity)
	var change Change
	switch {
	case !seen:
		rec = state.Record{
			ProjectName:  owner.Project,
			UserName:     owner.User,
			Checksum:     fingerprint,
			StableChecks: 1,
			DetectedAt:   now,
		}
		change = ChangeNew
	case rec.Checksum == fingerprint:
		rec.StableChecks++
		change = ChangeUnchanged
	default:
		rec.Checksum = fingerprint
		rec.StableChecks = 1
		if !rec.IsSynced {
			rec.ClearSyncAttempt()
		}
		change = ChangeChanged
	}
	if rec.ProjectName == "" {
		rec.ProjectName, rec.UserName = owner.Project, owner.User
	}
	if rec.StableChecks >= threshold {
		rec.LastStableConfirmedAt = now
	}
	t.store.Put(identity, rec)

	eligible := !rec.IsSynced && !rec.Failed(t.policy.MaxCopyRetries())
	return Observation{
		Change:       change,
		StableChecks: rec.StableChecks,
		BecameStable: rec.StableChecks == threshold,
		Candidate:    eligible && rec.StableChecks >= threshold,
		Record:       rec,
	}
}

// Demote resets a record whose folder changed while it was being copied.
// It has the same effect as observing a changed fingerprint.
func (t *Tracker) Demote(identity, fingerprint string) (state.Record, bool) {
	rec, ok := t.store.Get(identity)
	if !ok {
		return state.Record{}, false
	}
	rec.Checksum = fingerprint
	rec.StableChecks = 1
	rec.LastStableConfirmedAt = time.Time{}
	if !rec.IsSynced {
		rec.ClearSyncAttempt()
	}
	t.store.Put(identity, rec)
	return rec, true
}
