// Package faults defines the orchestration error taxonomy.
//
// Every failure that aborts a bootstrap run is tagged with one of the
// sentinel markers below so the CLI and the run ledger can classify it with
// errors.Is without parsing messages.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrFilesystem    = errors.New("filesystem error")
	ErrProcess       = errors.New("process error")
	ErrSerialization = errors.New("serialization error")
	ErrPublish       = errors.New("publish error")
	ErrAborted       = errors.New("aborted by operator")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above; nil defaults to ErrFilesystem.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFilesystem
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short classification label for err, suitable for the run
// ledger and status output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrProcess):
		return "process"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrPublish):
		return "publish"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "orchestration failure"
	}
	return strings.Join(parts, ": ")
}
