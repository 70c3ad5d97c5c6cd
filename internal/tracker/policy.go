package tracker

import "sync/atomic"

// Policy holds the thresholds shared by the tracker and the orchestrator.
// Values can be changed while the daemon runs; readers see the new value on
// their next call.
type Policy struct {
	checks  atomic.Int64
	retries atomic.Int64
}

// NewPolicy creates a policy. Values below 1 are raised to 1.
func NewPolicy(numberOfChecks, maxCopyRetries int) *Policy {
	p := &Policy{}
	p.Set(numberOfChecks, maxCopyRetries)
	return p
}

// Set replaces both thresholds. Failure is derived from the retry count, so
// raising maxCopyRetries makes packages that had spent the old budget eligible
// for copying again.
func (p *Policy) Set(numberOfChecks, maxCopyRetries int) {
	p.checks.Store(int64(max(numberOfChecks, 1)))
	p.retries.Store(int64(max(maxCopyRetries, 1)))
}

// NumberOfChecks is the stability threshold.
func (p *Policy) NumberOfChecks() int { return int(p.checks.Load()) }

// MaxCopyRetries is the copy retry budget.
func (p *Policy) MaxCopyRetries() int { return int(p.retries.Load()) }
