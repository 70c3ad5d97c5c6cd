package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/events"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/metrics"
	"git.home.luguber.info/inful/dropsync/internal/naming"
	"git.home.luguber.info/inful/dropsync/internal/orchestrator"
	"git.home.luguber.info/inful/dropsync/internal/state"
)

const (
	srcDir    = "/src"
	pkgDir    = "/src/acme-bob/pkg1"
	identity  = "acme-bob/pkg1"
	targetDir = "/mnt/a/acme/in/vendors/bob/pkg1"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) typesFor(id string) []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Type
	for _, e := range r.events {
		if e.Identity == id {
			out = append(out, e.Type)
		}
	}
	return out
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Sources = []string{srcDir}
	cfg.Destinations.Bases = []string{"/mnt/a"}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Finalize(cfg))
	return cfg
}

func seedFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, pkgDir+"/a.bin", make([]byte, 100), 0o644))
	require.NoError(t, afero.WriteFile(fs, pkgDir+"/sub/b.bin", make([]byte, 200), 0o644))
	require.NoError(t, fs.MkdirAll("/mnt/a/acme", 0o755))
	return fs
}

func newTestDaemon(t *testing.T, fs afero.Fs, cfg *config.Config) (*Daemon, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	d, err := New(cfg, Options{
		FS:     fs,
		Clock:  clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		Events: sink,
	})
	require.NoError(t, err)
	return d, sink
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRunOnceSyncsAfterThreshold(t *testing.T) {
	fs := seedFS(t)
	d, sink := newTestDaemon(t, fs, testConfig(t, nil))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		report, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Packages)
		assert.Zero(t, report.Candidates, "cycle %d", i)
		exists, _ := afero.DirExists(fs, targetDir)
		assert.False(t, exists, "nothing is copied before the threshold")
	}

	report, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Outcomes[orchestrator.OutcomeSynced])

	data, err := afero.ReadFile(fs, targetDir+"/sub/b.bin")
	require.NoError(t, err)
	assert.Len(t, data, 200)

	assert.Equal(t, []events.Type{
		events.TypeDetected,
		events.TypeStable,
		events.TypeCopyStarted,
		events.TypeCopyVerified,
	}, sink.typesFor(identity))

	// A fourth cycle observes the synced package but never copies it again.
	report, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)
	assert.Equal(t, StatusIdle, d.Status())
}

func TestRunOnceResetsCounterOnChange(t *testing.T) {
	fs := seedFS(t)
	d, sink := newTestDaemon(t, fs, testConfig(t, nil))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := d.RunOnce(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, afero.WriteFile(fs, pkgDir+"/late.bin", []byte("late"), 0o644))

	report, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)

	rec, ok := d.sources[0].store.Get(identity)
	require.True(t, ok)
	assert.Equal(t, 1, rec.StableChecks)
	assert.Contains(t, sink.typesFor(identity), events.TypeChanged)
}

func TestRunOncePersistsObservations(t *testing.T) {
	fs := seedFS(t)
	cfg := testConfig(t, nil)
	d, _ := newTestDaemon(t, fs, cfg)
	for i := 0; i < 2; i++ {
		_, err := d.RunOnce(context.Background())
		require.NoError(t, err)
	}

	// A restarted daemon continues counting from the state file.
	restarted, _ := newTestDaemon(t, fs, cfg)
	rec, ok := restarted.sources[0].store.Get(identity)
	require.True(t, ok)
	assert.Equal(t, 2, rec.StableChecks)

	report, err := restarted.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[orchestrator.OutcomeSynced])
}

func TestRunOnceSkipsMalformedNamesAndWarnsOnce(t *testing.T) {
	logs := captureLogs(t)
	fs := seedFS(t)
	require.NoError(t, fs.MkdirAll("/src/nodash/pkg", 0o755))
	require.NoError(t, fs.MkdirAll("/src/a-b-c/pkg", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/src/readme.txt", []byte("loose file"), 0o644))
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))

	for i := 0; i < 2; i++ {
		report, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.NamingViolations)
		assert.Equal(t, 1, report.Packages)
	}

	assert.Equal(t, 2, strings.Count(logs.String(), "does not match the naming convention"))
	assert.Equal(t, 1, d.sources[0].store.Len())
}

func TestRunOnceSkipsMissingSource(t *testing.T) {
	fs := seedFS(t)
	cfg := testConfig(t, func(c *config.Config) {
		c.Sources = []string{srcDir, "/missing"}
	})
	d, _ := newTestDaemon(t, fs, cfg)

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ScanErrors)
	assert.Equal(t, 1, report.Packages)

	exists, _ := afero.Exists(fs, "/missing/folder_states.json")
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, "/src/folder_states.json")
	assert.True(t, exists)
}

func TestRunOnceCancelled(t *testing.T) {
	fs := seedFS(t)
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)
	assert.Zero(t, d.sources[0].store.Len())
}

func TestNewRejectsCorruptState(t *testing.T) {
	fs := seedFS(t)
	require.NoError(t, afero.WriteFile(fs, "/src/folder_states.json", []byte("{not json"), 0o644))

	_, err := New(testConfig(t, nil), Options{FS: fs})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryState))
}

func TestReloadConfigAppliesPolicy(t *testing.T) {
	fs := seedFS(t)
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))

	next := testConfig(t, func(c *config.Config) {
		c.Polling.NumberOfChecks = 1
		c.Sync.MaxCopyRetries = 7
	})
	require.NoError(t, d.ReloadConfig(next))
	assert.Equal(t, 1, d.policy.NumberOfChecks())
	assert.Equal(t, 7, d.policy.MaxCopyRetries())
	assert.Same(t, next, d.GetConfig())

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[orchestrator.OutcomeSynced])
}

func TestReloadConfigRejectsBadPattern(t *testing.T) {
	fs := seedFS(t)
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))
	before := d.GetConfig()

	bad := testConfig(t, nil)
	bad.Naming.Pattern = "^(.*)$"
	require.Error(t, d.ReloadConfig(bad))
	assert.Same(t, before, d.GetConfig())
}

func TestUpdateGaugesCountsStatuses(t *testing.T) {
	fs := seedFS(t)
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))
	store := d.sources[0].store
	store.Put("acme-eve/pkg2", state.Record{ProjectName: "acme", UserName: "eve", StableChecks: 3, CopyRetryCount: 3})
	store.Put("acme-joe/pkg3", state.Record{ProjectName: "acme", UserName: "joe", StableChecks: 3, IsSynced: true})

	rec := &gaugeRecorder{values: map[string]int{}}
	d.recorder = rec
	d.updateGauges(d.sources[0])

	assert.Equal(t, map[string]int{"pending": 0, "synced": 1, "failed": 1}, rec.values)
}

type gaugeRecorder struct {
	metrics.NoopRecorder
	values map[string]int
}

func (g *gaugeRecorder) SetPackages(_ string, status string, n int) { g.values[status] = n }

func TestRunOnceSyncsDecomposedFolderName(t *testing.T) {
	fs := seedFS(t)
	name := norm.NFD.String("café")
	require.NoError(t, afero.WriteFile(fs, "/src/acme-bob/"+name+"/data.bin", make([]byte, 42), 0o644))
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))

	var synced int
	for range 4 {
		report, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.ScanErrors)
		synced += report.Outcomes[orchestrator.OutcomeSynced]
	}
	assert.Equal(t, 2, synced, "both packages sync")

	rec, ok := d.sources[0].store.Get(naming.Identity("acme-bob", name))
	require.True(t, ok)
	assert.True(t, rec.IsSynced)
	exists, err := afero.Exists(fs, "/mnt/a/acme/in/vendors/bob/"+norm.NFC.String(name)+"/data.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunOnceChangeAfterSyncKeepsAuditTrail(t *testing.T) {
	fs := seedFS(t)
	d, _ := newTestDaemon(t, fs, testConfig(t, nil))
	ctx := context.Background()

	for range 3 {
		_, err := d.RunOnce(ctx)
		require.NoError(t, err)
	}
	synced, _ := d.sources[0].store.Get(identity)
	require.True(t, synced.IsSynced)
	require.False(t, synced.CopiedAt.IsZero())

	require.NoError(t, afero.WriteFile(fs, pkgDir+"/late.bin", []byte("late"), 0o644))
	_, err := d.RunOnce(ctx)
	require.NoError(t, err)

	reopened, err := state.Open(fs, d.sources[0].store.Path())
	require.NoError(t, err)
	rec, _ := reopened.Get(identity)
	assert.True(t, rec.IsSynced)
	assert.Equal(t, 1, rec.StableChecks)
	assert.True(t, synced.CopiedAt.Equal(rec.CopiedAt))
	assert.Equal(t, targetDir, rec.DestinationPackagePath)
	assert.Equal(t, "/mnt/a/acme", rec.DestinationProjectPath)
}
