package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dropsync/internal/config"
	"git.home.luguber.info/inful/dropsync/internal/daemon"
	"git.home.luguber.info/inful/dropsync/internal/events"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/orchestrator"
	"git.home.luguber.info/inful/dropsync/internal/state"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Vars{"version": "test"}, kong.Bind(&Global{}))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

func TestParseRunOverrides(t *testing.T) {
	cli, kctx := parse(t, "-c", "custom.yaml", "run", "--source", "/in/a", "--source", "/in/b", "--dest", "/mnt/x", "--checks", "5", "--interval", "30s")
	assert.Equal(t, "run", kctx.Command())
	assert.Equal(t, "custom.yaml", cli.Config)

	o := cli.Run.overrides()
	assert.Equal(t, []string{"/in/a", "/in/b"}, o.Sources)
	assert.Equal(t, []string{"/mnt/x"}, o.Destinations)
	assert.Equal(t, 5, o.Checks)
	assert.Equal(t, "30s", o.Interval)
	assert.Zero(t, o.Retries)
}

func TestParseStatusFlags(t *testing.T) {
	cli, kctx := parse(t, "status", "--json", "--history", "20")
	assert.Equal(t, "status", kctx.Command())
	assert.True(t, cli.Status.JSON)
	assert.Equal(t, 20, cli.Status.History)
}

func TestLoadConfigFromFlagsOnly(t *testing.T) {
	root := &CLI{Config: filepath.Join(t.TempDir(), "absent.yaml")}
	cfg, path, err := loadConfig(&Global{}, root, config.Overrides{
		Sources:      []string{"/in"},
		Destinations: []string{"/mnt"},
		Checks:       4,
	})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, []string{"/in"}, cfg.Sources)
	assert.Equal(t, 4, cfg.Polling.NumberOfChecks)
	assert.Equal(t, config.DefaultMaxCopyRetries, cfg.Sync.MaxCopyRetries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	root := &CLI{Config: filepath.Join(t.TempDir(), "absent.yaml")}
	_, _, err := loadConfig(&Global{}, root, config.Overrides{})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
	assert.Equal(t, 7, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestInitThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dropsync.yaml")
	require.NoError(t, RunInit(path, false))
	require.Error(t, RunInit(path, false), "existing file is not overwritten")
	require.NoError(t, RunInit(path, true))

	root := &CLI{Config: path}
	cfg, gotPath, err := loadConfig(&Global{}, root, config.Overrides{Retries: 6})
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, 6, cfg.Sync.MaxCopyRetries)
	assert.Empty(t, cfg.Events.NATSURL)
}

func TestCollectStatusAndTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Sources = []string{"/src"}
	cfg.Destinations.Bases = []string{"/mnt"}
	require.NoError(t, config.Finalize(cfg))

	store, err := state.Open(fs, cfg.StatePath("/src"))
	require.NoError(t, err)
	detected := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert("acme-bob/pkg1", state.Record{
		ProjectName: "acme", UserName: "bob", Checksum: "0123456789abcdef",
		StableChecks: 3, DetectedAt: detected, IsSynced: true,
		DestinationPackagePath: "/mnt/acme/in/vendors/bob/pkg1", CopiedAt: detected,
	}))
	require.NoError(t, store.Upsert("acme-eve/pkg2", state.Record{
		ProjectName: "acme", UserName: "eve", Checksum: "fedcba9876543210",
		StableChecks: 5, DetectedAt: detected, CopyRetryCount: 3,
	}))

	sources, err := CollectStatus(fs, cfg)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Len(t, sources[0].Packages, 2)
	assert.Equal(t, state.StatusSynced, sources[0].Packages[0].Status)
	assert.Equal(t, state.StatusFailed, sources[0].Packages[1].Status)

	var buf bytes.Buffer
	writeStatusTable(&buf, sources)
	out := buf.String()
	assert.Contains(t, out, "SOURCE /src (2 packages)")
	assert.Contains(t, out, "acme-bob/pkg1")
	assert.Contains(t, out, "synced")
	assert.Contains(t, out, "failed")

	buf.Reset()
	require.NoError(t, writeStatusJSON(&buf, sources, nil))
	var decoded struct {
		Sources []daemon.SourceStatus `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "acme-eve/pkg2", decoded.Sources[0].Packages[1].Identity)
}

func TestRecentEventsFromJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	_, err := recentEvents(path, 5)
	require.Error(t, err, "a missing journal is not created")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	j, err := events.NewJournalSink(path)
	require.NoError(t, err)
	require.NoError(t, j.Emit(context.Background(), events.Event{
		Type: events.TypeDetected, Identity: "acme-bob/pkg1", Source: "/src", Time: time.Now(),
	}))
	require.NoError(t, j.Close())

	recent, err := recentEvents(path, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, events.TypeDetected, recent[0].Type)

	_, err = recentEvents("", 5)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &daemon.CycleReport{
		CycleID:    "c-1",
		Packages:   4,
		Candidates: 2,
		Outcomes: map[orchestrator.Outcome]int{
			orchestrator.OutcomeSynced:         1,
			orchestrator.OutcomeRetryScheduled: 1,
		},
		NamingViolations: 1,
	})
	out := buf.String()
	assert.Contains(t, out, "cycle c-1: 4 packages observed, 2 candidates")
	assert.Contains(t, out, "retry_scheduled")
	assert.Contains(t, out, "naming violations 1")
}
