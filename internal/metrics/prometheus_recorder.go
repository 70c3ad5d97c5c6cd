package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "dropsync"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	cycleDuration prom.Histogram
	cycles        *prom.CounterVec
	observations  *prom.CounterVec
	scanErrors    prom.Counter
	namingErrors  prom.Counter
	syncOutcomes  *prom.CounterVec
	copyDuration  *prom.HistogramVec
	copiedFiles   *prom.CounterVec
	copiedBytes   prom.Counter
	packages      *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cycleDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles",
			Buckets:   prom.DefBuckets,
		})
		pr.cycles = prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"})
		pr.observations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "observations_total",
			Help:      "Package folder observations by change kind",
		}, []string{"change"})
		pr.scanErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "scan_errors_total",
			Help:      "Package folders that could not be scanned",
		})
		pr.namingErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "naming_violations_total",
			Help:      "Top-level folders skipped for not following the naming convention",
		})
		pr.syncOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "sync_outcomes_total",
			Help:      "Sync attempts by outcome",
		}, []string{"outcome"})
		pr.copyDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: Namespace,
			Name:      "copy_duration_seconds",
			Help:      "Duration of package copies including verification",
			Buckets:   prom.ExponentialBuckets(0.01, 4, 10),
		}, []string{"result"})
		pr.copiedFiles = prom.NewCounterVec(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "copied_files_total",
			Help:      "Files written or skipped by incremental copies",
		}, []string{"action"})
		pr.copiedBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: Namespace,
			Name:      "copied_bytes_total",
			Help:      "Bytes written to destinations",
		})
		pr.packages = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: Namespace,
			Name:      "packages",
			Help:      "Tracked packages per source by status",
		}, []string{"source", "status"})
		reg.MustRegister(pr.cycleDuration, pr.cycles, pr.observations, pr.scanErrors, pr.namingErrors,
			pr.syncOutcomes, pr.copyDuration, pr.copiedFiles, pr.copiedBytes, pr.packages)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCycle(result string) {
	if p == nil || p.cycles == nil {
		return
	}
	p.cycles.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncObservation(change string) {
	if p == nil || p.observations == nil {
		return
	}
	p.observations.WithLabelValues(change).Inc()
}

func (p *PrometheusRecorder) IncScanError() {
	if p == nil || p.scanErrors == nil {
		return
	}
	p.scanErrors.Inc()
}

func (p *PrometheusRecorder) IncNamingViolation() {
	if p == nil || p.namingErrors == nil {
		return
	}
	p.namingErrors.Inc()
}

func (p *PrometheusRecorder) IncSyncOutcome(outcome string) {
	if p == nil || p.syncOutcomes == nil {
		return
	}
	p.syncOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveCopyDuration(d time.Duration, success bool) {
	if p == nil || p.copyDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.copyDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddCopiedFiles(copied, skipped int, bytes int64) {
	if p == nil || p.copiedFiles == nil {
		return
	}
	p.copiedFiles.WithLabelValues("copied").Add(float64(copied))
	p.copiedFiles.WithLabelValues("skipped").Add(float64(skipped))
	p.copiedBytes.Add(float64(bytes))
}

func (p *PrometheusRecorder) SetPackages(source, status string, n int) {
	if p == nil || p.packages == nil {
		return
	}
	p.packages.WithLabelValues(source, status).Set(float64(n))
}
