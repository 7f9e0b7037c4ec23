package faults_test

import (
	"errors"
	"io/fs"
	"testing"

	"seedctl/internal/faults"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	err := faults.Wrap(faults.ErrFilesystem, "staging", "remove", "/tmp/x", fs.ErrPermission)
	if !errors.Is(err, faults.ErrFilesystem) {
		t.Fatalf("expected filesystem marker, got %v", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	want := "filesystem error: staging: remove: /tmp/x: permission denied"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := faults.Wrap(faults.ErrValidation, "", "", "", nil)
	if err.Error() != "validation error: orchestration failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{faults.Wrap(faults.ErrProcess, "supervisor", "init", "", nil), "process"},
		{faults.Wrap(faults.ErrSerialization, "seed", "", "", nil), "serialization"},
		{faults.ErrAborted, "aborted"},
		{errors.New("other"), "unknown"},
	}
	for _, tc := range tests {
		if got := faults.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
