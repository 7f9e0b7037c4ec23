package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ReadyLine is a serve output line carrying the runtime readiness marker.
const ReadyLine = "2026-10-18T10:00:00Z INFO GraphQL server started, Unlock the agent to start holohchain"

// StubRuntime describes the behaviour of a generated runtime script.
type StubRuntime struct {
	InitLines   []string
	InitExit    int
	InitHold    bool
	ServeLines  []string
	ServeStderr []string
	ServeExit   int
	// Hold keeps the serve process alive after its output until it is
	// signalled.
	Hold bool
}

// WriteStubRuntime writes an executable shell script emulating the runtime
// CLI into dir and returns its path. Every invocation other than --version
// appends its arguments to CallsPath(path).
func WriteStubRuntime(t testing.TB, dir string, stub StubRuntime) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir stub dir: %v", err)
	}
	path := filepath.Join(dir, "ad4m-host")

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("if [ \"$1\" = \"--version\" ]; then echo 'ad4m-host stub'; exit 0; fi\n")
	fmt.Fprintf(&b, "printf '%%s\\n' \"$*\" >> %s\n", shellQuote(CallsPath(path)))
	b.WriteString("case \"$1\" in\n")
	b.WriteString("init)\n")
	writeEcho(&b, stub.InitLines, "")
	if stub.InitHold {
		b.WriteString("  exec sleep 600\n")
	}
	fmt.Fprintf(&b, "  exit %d\n  ;;\n", stub.InitExit)
	b.WriteString("*)\n")
	writeEcho(&b, stub.ServeLines, "")
	writeEcho(&b, stub.ServeStderr, " >&2")
	if stub.Hold {
		b.WriteString("  exec sleep 600\n")
	}
	fmt.Fprintf(&b, "  exit %d\n  ;;\nesac\n", stub.ServeExit)

	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		t.Fatalf("write stub runtime: %v", err)
	}
	return path
}

// CallsPath returns the file recording the stub's invocations.
func CallsPath(stubPath string) string {
	return stubPath + ".calls"
}

// ReadCalls returns the argument lines recorded by a stub runtime.
func ReadCalls(t testing.TB, stubPath string) []string {
	t.Helper()
	data, err := os.ReadFile(CallsPath(stubPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read stub calls: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func writeEcho(b *strings.Builder, lines []string, redirect string) {
	for _, line := range lines {
		fmt.Fprintf(b, "  printf '%%s\\n' %s%s\n", shellQuote(line), redirect)
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
