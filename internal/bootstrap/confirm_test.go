package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"seedctl/internal/faults"
)

func TestPromptConfirmerAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "n\n", want: false},
		{input: "  N \n", want: false},
		{input: "y\n", want: true},
		{input: "\n", want: true},
		{input: "no\n", want: true},
		{input: "n", want: false},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		got, err := PromptConfirmer{In: strings.NewReader(tc.input), Out: &out}.Confirm(context.Background(), "/home/op/.ad4m")
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("Confirm(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if !strings.Contains(out.String(), Prompt) || !strings.Contains(out.String(), "/home/op/.ad4m") {
			t.Fatalf("prompt not shown: %q", out.String())
		}
	}
}

func TestPromptConfirmerWithoutInputAborts(t *testing.T) {
	_, err := PromptConfirmer{In: strings.NewReader(""), Out: &bytes.Buffer{}}.Confirm(context.Background(), "x")
	if !errors.Is(err, faults.ErrAborted) {
		t.Fatalf("expected aborted error, got %v", err)
	}
}
