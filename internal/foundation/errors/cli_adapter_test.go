package errors

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: 0,
		},
		{
			name:     "validation error",
			err:      ValidationError("invalid input").Build(),
			expected: 2,
		},
		{
			name:     "config error",
			err:      ConfigError("bad config").Build(),
			expected: 7,
		},
		{
			name:     "state corruption",
			err:      StateCorruptionError("invalid JSON").Build(),
			expected: 9,
		},
		{
			name:     "wrapped state corruption",
			err:      fmt.Errorf("open store: %w", StateCorruptionError("invalid JSON").Build()),
			expected: 9,
		},
		{
			name:     "destination error",
			err:      DestinationUnavailableError("no project directory").Build(),
			expected: 8,
		},
		{
			name:     "unclassified error",
			err:      &customError{msg: "unknown error"},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.ExitCodeFor(tt.err)
			if got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	t.Run("non-verbose classified", func(t *testing.T) {
		adapter := NewCLIErrorAdapter(false, slog.Default())
		msg := adapter.FormatError(StateCorruptionError("state file is not valid JSON").Build())
		if !strings.HasPrefix(msg, "Error: state file is not valid JSON") {
			t.Errorf("unexpected message %q", msg)
		}
		if !strings.Contains(msg, "operator action required") {
			t.Errorf("expected operator hint in %q", msg)
		}
	})

	t.Run("verbose classified", func(t *testing.T) {
		adapter := NewCLIErrorAdapter(true, slog.Default())
		msg := adapter.FormatError(ConfigError("missing sources").Build())
		if msg != "config (fatal): missing sources" {
			t.Errorf("unexpected message %q", msg)
		}
	})

	t.Run("unclassified", func(t *testing.T) {
		adapter := NewCLIErrorAdapter(false, slog.Default())
		if got := adapter.FormatError(&customError{msg: "boom"}); got != "Error: boom" {
			t.Errorf("unexpected message %q", got)
		}
	})
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}
