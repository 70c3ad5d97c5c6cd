package state

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status is the derived lifecycle position of a record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Record is everything dropsync knows about one package folder.
type Record struct {
	ProjectName string
	UserName    string

	Checksum     string
	StableChecks int
	DetectedAt   time.Time

	// LastStableConfirmedAt is kept in memory only.
	LastStableConfirmedAt time.Time

	IsSynced               bool
	CopyRetryCount         int
	DestinationProjectPath string
	DestinationPackagePath string
	CopiedAt               time.Time
}

// Status derives the lifecycle position. A record is failed once its retry
// count has reached maxRetries without a successful sync.
func (r Record) Status(maxRetries int) Status {
	switch {
	case r.IsSynced:
		return StatusSynced
	case r.CopyRetryCount >= maxRetries:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Failed reports whether the retry budget is spent.
func (r Record) Failed(maxRetries int) bool {
	return r.Status(maxRetries) == StatusFailed
}

// ClearSyncAttempt drops destination paths and copy time left by an earlier attempt.
func (r *Record) ClearSyncAttempt() {
	r.DestinationProjectPath = ""
	r.DestinationPackagePath = ""
	r.CopiedAt = time.Time{}
}

// DestinationPackagePaths splits the recorded package paths. Several paths are
// recorded when a package was copied to more than one destination base.
func (r Record) DestinationPackagePaths() []string {
	return filepath.SplitList(r.DestinationPackagePath)
}

// JoinPaths joins destination paths the way they are stored in a record.
func JoinPaths(paths []string) string {
	return strings.Join(paths, string(filepath.ListSeparator))
}

// fileRecord is the on-disk shape. Field order matches the documented file layout.
type fileRecord struct {
	Checksum               string `json:"checksum"`
	CopiedDateTime         string `json:"copied_date_time"`
	CopyRetryCount         int    `json:"copy_retry_count"`
	DestinationPackagePath string `json:"destination_package_path"`
	DestinationProjectPath string `json:"destination_project_path"`
	DetectedDateTime       string `json:"detected_date_time"`
	IsSyncedToDestination  bool   `json:"is_synced_to_destination"`
	ProjectName            string `json:"project_name"`
	StableChecks           int    `json:"stable_checks"`
	UserName               string `json:"user_name"`
}

func toFile(r Record) fileRecord {
	return fileRecord{
		Checksum:               r.Checksum,
		CopiedDateTime:         formatTime(r.CopiedAt),
		CopyRetryCount:         r.CopyRetryCount,
		DestinationPackagePath: r.DestinationPackagePath,
		DestinationProjectPath: r.DestinationProjectPath,
		DetectedDateTime:       formatTime(r.DetectedAt),
		IsSyncedToDestination:  r.IsSynced,
		ProjectName:            r.ProjectName,
		StableChecks:           r.StableChecks,
		UserName:               r.UserName,
	}
}

func fromFile(f fileRecord) (Record, error) {
	if f.StableChecks < 0 {
		return Record{}, fmt.Errorf("negative stable_checks %d", f.StableChecks)
	}
	if f.CopyRetryCount < 0 {
		return Record{}, fmt.Errorf("negative copy_retry_count %d", f.CopyRetryCount)
	}
	detected, err := parseTime(f.DetectedDateTime)
	if err != nil {
		return Record{}, fmt.Errorf("detected_date_time: %w", err)
	}
	copied, err := parseTime(f.CopiedDateTime)
	if err != nil {
		return Record{}, fmt.Errorf("copied_date_time: %w", err)
	}
	return Record{
		ProjectName:            f.ProjectName,
		UserName:               f.UserName,
		Checksum:               f.Checksum,
		StableChecks:           f.StableChecks,
		DetectedAt:             detected,
		IsSynced:               f.IsSyncedToDestination,
		CopyRetryCount:         f.CopyRetryCount,
		DestinationProjectPath: f.DestinationProjectPath,
		DestinationPackagePath: f.DestinationPackagePath,
		CopiedAt:               copied,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
