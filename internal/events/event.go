// Package events reports package lifecycle transitions to pluggable sinks.
//
// The log sink is always active. The SQLite journal keeps a queryable history
// and the NATS sink notifies downstream consumers; both are optional. Sinks
// are best effort: a failing sink never changes the outcome of a sync.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeDetected            Type = "detected"
	TypeStable              Type = "stable"
	TypeChanged             Type = "changed"
	TypeCopyStarted         Type = "copy_started"
	TypeCopyVerified        Type = "copy_verified"
	TypeCopyFailed          Type = "copy_failed"
	TypeSyncFailedPermanent Type = "sync_failed_permanent"
)

// Event is one lifecycle transition of a package.
type Event struct {
	Type     Type              `json:"type"`
	Identity string            `json:"identity"`
	Source   string            `json:"source"`
	CycleID  string            `json:"cycle_id,omitempty"`
	Time     time.Time         `json:"time"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
func (Nop) Close() error                      { return nil }
