package metrics

import "time"

// Recorder defines observability hooks for poll cycles and package syncs.
type Recorder interface {
	ObserveCycleDuration(d time.Duration)
	IncCycle(result string) // ok|error
	IncObservation(change string)
	IncScanError()
	IncNamingViolation()
	IncSyncOutcome(outcome string)
	ObserveCopyDuration(d time.Duration, success bool)
	AddCopiedFiles(copied, skipped int, bytes int64)
	SetPackages(source, status string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycleDuration(time.Duration)      {}
func (NoopRecorder) IncCycle(string)                         {}
func (NoopRecorder) IncObservation(string)                   {}
func (NoopRecorder) IncScanError()                           {}
func (NoopRecorder) IncNamingViolation()                     {}
func (NoopRecorder) IncSyncOutcome(string)                   {}
func (NoopRecorder) ObserveCopyDuration(time.Duration, bool) {}
func (NoopRecorder) AddCopiedFiles(int, int, int64)          {}
func (NoopRecorder) SetPackages(string, string, int)         {}
