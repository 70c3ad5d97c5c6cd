package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyIdentity     = "identity"
	KeyProject      = "project"
	KeyUser         = "user"
	KeyPackage      = "package"
	KeySource       = "source"
	KeyDestination  = "destination"
	KeyStableChecks = "stable_checks"
	KeyRetryCount   = "retry_count"
	KeyFingerprint  = "fingerprint"
	KeyCycleID      = "cycle_id"
	KeyOutcome      = "outcome"
	KeyPath         = "path"
	KeyName         = "name"
	KeyCount        = "count"
	KeyDurationMS   = "duration_ms"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Identity(id string) slog.Attr      { return slog.String(KeyIdentity, id) }
func Project(p string) slog.Attr        { return slog.String(KeyProject, p) }
func User(u string) slog.Attr           { return slog.String(KeyUser, u) }
func Package(p string) slog.Attr        { return slog.String(KeyPackage, p) }
func Source(dir string) slog.Attr       { return slog.String(KeySource, dir) }
func Destination(path string) slog.Attr { return slog.String(KeyDestination, path) }
func StableChecks(n int) slog.Attr      { return slog.Int(KeyStableChecks, n) }
func RetryCount(n int) slog.Attr        { return slog.Int(KeyRetryCount, n) }
func Fingerprint(fp string) slog.Attr   { return slog.String(KeyFingerprint, fp) }
func CycleID(id string) slog.Attr       { return slog.String(KeyCycleID, id) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Name(n string) slog.Attr           { return slog.String(KeyName, n) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Since(start time.Time) slog.Attr   { return DurationMS(float64(time.Since(start).Milliseconds())) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
