package data

import (
	"context"
	"errors"
	"testing"
)

func TestSkippable(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected bool
	}{
		"nil":             {err: nil, expected: false},
		"io failure":      {err: IOFailure(errors.New("disk"), "a/b"), expected: true},
		"mount failure":   {err: MountFailed(nil, "a.zip"), expected: true},
		"not found":       {err: NotFound("a"), expected: true},
		"plain error":     {err: errors.New("visitor"), expected: false},
		"closed":          {err: Closed("context"), expected: false},
		"recursion limit": {err: IOFailure(RecursionLimit("a", 8), "a"), expected: false},
		"cancelled":       {err: IOFailure(context.Canceled, "a"), expected: false},
		"deadline":        {err: IOFailure(context.DeadlineExceeded, "a"), expected: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Skippable(tt.err); got != tt.expected {
				t.Errorf("Expected %v, got %v for %v", tt.expected, got, tt.err)
			}
		})
	}
}

func TestIOFailure_KeepsCause(t *testing.T) {
	err := IOFailure(ErrPermission, "a/b")
	if !errors.Is(err, ErrIOFailure) || !errors.Is(err, ErrPermission) {
		t.Errorf("Expected both sentinels to be reachable, got %v", err)
	}
	if err.Error() != "vfs: i/o failure on 'a/b': vfs: permission denied" {
		t.Errorf("Expected %q, got %q", "vfs: i/o failure on 'a/b': vfs: permission denied", err.Error())
	}
}
