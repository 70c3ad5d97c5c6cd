package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCycleDuration(150 * time.Millisecond)
	pr.IncCycle("ok")
	pr.IncObservation("new")
	pr.IncScanError()
	pr.IncNamingViolation()
	pr.IncSyncOutcome("synced")
	pr.ObserveCopyDuration(2*time.Second, true)
	pr.AddCopiedFiles(3, 1, 4096)
	pr.SetPackages("/data/in", "pending", 2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `dropsync_sync_outcomes_total{outcome="synced"} 1`)
	assert.Contains(t, text, `dropsync_copied_bytes_total 4096`)
	assert.Contains(t, text, `dropsync_packages{source="/data/in",status="pending"} 2`)
	assert.Contains(t, text, `dropsync_copied_files_total{action="skipped"} 1`)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncCycle("ok")
	pr.SetPackages("s", "synced", 1)
	pr.AddCopiedFiles(1, 1, 1)
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncSyncOutcome("synced")
	r = NewPrometheusRecorder(nil)
	r.IncSyncOutcome("synced")
}
