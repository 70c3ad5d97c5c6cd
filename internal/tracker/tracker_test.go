package tracker

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/state"
)

const id = "acme-bob/pkg1"

var owner = naming.Owner{Project: "acme", User: "bob"}

func newTracker(t *testing.T, checks, retries int) (*Tracker, *state.Store, *clockwork.FakeClock) {
	t.Helper()
	store, err := state.Open(afero.NewMemMapFs(), "/src/folder_states.json")
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(store, NewPolicy(checks, retries), clock), store, clock
}

func TestCandidacyExactlyAtThreshold(t *testing.T) {
	tr, _, _ := newTracker(t, 3, 3)

	obs := tr.Observe(id, owner, "fp")
	assert.Equal(t, ChangeNew, obs.Change)
	assert.Equal(t, 1, obs.StableChecks)
	assert.False(t, obs.Candidate)

	obs = tr.Observe(id, owner, "fp")
	assert.Equal(t, ChangeUnchanged, obs.Change)
	assert.Equal(t, 2, obs.StableChecks)
	assert.False(t, obs.Candidate)

	obs = tr.Observe(id, owner, "fp")
	assert.Equal(t, 3, obs.StableChecks)
	assert.True(t, obs.BecameStable)
	assert.True(t, obs.Candidate)

	obs = tr.Observe(id, owner, "fp")
	assert.Equal(t, 4, obs.StableChecks)
	assert.False(t, obs.BecameStable, "BecameStable fires once")
	assert.True(t, obs.Candidate, "candidacy is idempotent")
}

func TestChangeResetsAndUncandidates(t *testing.T) {
	tr, store, _ := newTracker(t, 2, 3)

	tr.Observe(id, owner, "fp1")
	obs := tr.Observe(id, owner, "fp1")
	require.True(t, obs.Candidate)

	rec, _ := store.Get(id)
	rec.DestinationPackagePath = "/mnt/a/acme/in/vendors/bob/pkg1"
	rec.CopyRetryCount = 1
	store.Put(id, rec)

	obs = tr.Observe(id, owner, "fp2")
	assert.Equal(t, ChangeChanged, obs.Change)
	assert.Equal(t, 1, obs.StableChecks)
	assert.False(t, obs.Candidate)
	assert.Empty(t, obs.Record.DestinationPackagePath)
	assert.Equal(t, 1, obs.Record.CopyRetryCount, "retry count never decreases")
	assert.Equal(t, "fp2", obs.Record.Checksum)
}

func TestNewRecordFields(t *testing.T) {
	tr, store, clock := newTracker(t, 3, 3)

	tr.Observe(id, owner, "fp")
	rec, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "acme", rec.ProjectName)
	assert.Equal(t, "bob", rec.UserName)
	assert.Equal(t, clock.Now(), rec.DetectedAt)
	assert.False(t, rec.IsSynced)

	clock.Advance(time.Minute)
	tr.Observe(id, owner, "fp")
	rec, _ = store.Get(id)
	assert.NotEqual(t, clock.Now(), rec.DetectedAt, "detection time is fixed on first sight")
}

func TestSyncedAndFailedAreNeverCandidates(t *testing.T) {
	tr, store, _ := newTracker(t, 1, 2)

	store.Put(id, state.Record{Checksum: "fp", StableChecks: 5, IsSynced: true})
	obs := tr.Observe(id, owner, "fp")
	assert.Equal(t, 6, obs.StableChecks)
	assert.False(t, obs.Candidate)

	store.Put("acme-bob/pkg2", state.Record{Checksum: "fp", StableChecks: 5, CopyRetryCount: 2})
	obs = tr.Observe("acme-bob/pkg2", owner, "fp")
	assert.False(t, obs.Candidate)
}

func TestDemote(t *testing.T) {
	tr, store, _ := newTracker(t, 2, 3)
	tr.Observe(id, owner, "fp1")
	tr.Observe(id, owner, "fp1")

	rec, ok := tr.Demote(id, "fp2")
	require.True(t, ok)
	assert.Equal(t, 1, rec.StableChecks)
	assert.Equal(t, "fp2", rec.Checksum)

	stored, _ := store.Get(id)
	assert.Equal(t, rec, stored)

	_, ok = tr.Demote("unknown/pkg", "fp")
	assert.False(t, ok)
}

func TestThresholdUpdatedAtRuntime(t *testing.T) {
	tr, _, _ := newTracker(t, 5, 3)
	tr.Observe(id, owner, "fp")
	obs := tr.Observe(id, owner, "fp")
	assert.False(t, obs.Candidate)

	tr.policy.Set(2, 3)
	obs = tr.Observe(id, owner, "fp")
	assert.True(t, obs.Candidate)
	assert.False(t, obs.BecameStable, "counter passed the new threshold without equalling it")
}

func TestPolicyClampsToOne(t *testing.T) {
	p := NewPolicy(0, -3)
	assert.Equal(t, 1, p.NumberOfChecks())
	assert.Equal(t, 1, p.MaxCopyRetries())
}

func TestChangeAfterSyncKeepsAuditFields(t *testing.T) {
	tr, store, _ := newTracker(t, 2, 3)
	copied := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	store.Put(id, state.Record{
		ProjectName:            "acme",
		UserName:               "bob",
		Checksum:               "fp1",
		StableChecks:           4,
		IsSynced:               true,
		DestinationProjectPath: "/mnt/a/acme",
		DestinationPackagePath: "/mnt/a/acme/in/vendors/bob/pkg1",
		CopiedAt:               copied,
	})

	obs := tr.Observe(id, owner, "fp2")
	assert.Equal(t, ChangeChanged, obs.Change)
	assert.Equal(t, 1, obs.StableChecks)
	assert.False(t, obs.Candidate)

	rec, _ := store.Get(id)
	assert.True(t, rec.IsSynced)
	assert.Equal(t, copied, rec.CopiedAt)
	assert.Equal(t, "/mnt/a/acme", rec.DestinationProjectPath)
	assert.Equal(t, "/mnt/a/acme/in/vendors/bob/pkg1", rec.DestinationPackagePath)

	rec, ok := tr.Demote(id, "fp3")
	require.True(t, ok)
	assert.Equal(t, copied, rec.CopiedAt)
	assert.Equal(t, "/mnt/a/acme/in/vendors/bob/pkg1", rec.DestinationPackagePath)
}

func TestRaisingRetryBudgetRearmsFailedRecord(t *testing.T) {
	tr, store, _ := newTracker(t, 1, 2)
	store.Put(id, state.Record{Checksum: "fp", StableChecks: 3, CopyRetryCount: 2})

	obs := tr.Observe(id, owner, "fp")
	assert.False(t, obs.Candidate)

	tr.policy.Set(1, 4)
	obs = tr.Observe(id, owner, "fp")
	assert.True(t, obs.Candidate)
	assert.Equal(t, 2, obs.Record.CopyRetryCount)
}
