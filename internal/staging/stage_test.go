package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"seedctl/internal/faults"
	"seedctl/internal/logging"
)

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	sort.Strings(files)
	return files
}

func writeIdentity(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "publisher-agent.json")
	if err := os.WriteFile(path, []byte(`{"did":"did:key:z6Mkpublisher","keystore":"..."}`), 0o600); err != nil {
		t.Fatalf("write identity: %v", err)
	}
	return path
}

func TestStageReplacesExistingContents(t *testing.T) {
	base := filepath.Join(t.TempDir(), ".ad4m")
	for _, stale := range []string{"ad4m/agent.json", "data/DIDCache.json", "holochain/conductor.db", "notes.txt"} {
		path := filepath.Join(base, stale)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	identity := writeIdentity(t)
	layout := Layout{Base: base, ConfigSubdir: "ad4m"}

	for run := 0; run < 2; run++ {
		result, err := Stage(layout, identity, logging.NewNop())
		if err != nil {
			t.Fatalf("run %d: Stage: %v", run, err)
		}
		got := listFiles(t, base)
		want := []string{"ad4m/agent.json", "data/DIDCache.json"}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("run %d: expected exactly %v, got %v", run, want, got)
		}
		if result.IdentityDigest == "" {
			t.Fatalf("run %d: expected identity digest", run)
		}
	}

	agent, err := os.ReadFile(layout.AgentPath())
	if err != nil {
		t.Fatal(err)
	}
	source, _ := os.ReadFile(identity)
	if string(agent) != string(source) {
		t.Fatalf("identity not copied verbatim: %q", agent)
	}
	cache, err := os.ReadFile(layout.DIDCachePath())
	if err != nil {
		t.Fatal(err)
	}
	if string(cache) != "{}" {
		t.Fatalf("expected empty JSON object, got %q", cache)
	}
}

func TestStageCreatesMissingBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "fresh")
	layout := Layout{Base: base, ConfigSubdir: "config"}
	if _, err := Stage(layout, writeIdentity(t), nil); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "config", "agent.json")); err != nil {
		t.Fatalf("expected agent.json under config subtree: %v", err)
	}
}

func TestStageMissingIdentityLeavesBaseUntouched(t *testing.T) {
	base := filepath.Join(t.TempDir(), ".ad4m")
	keep := filepath.Join(base, "keep.txt")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keep, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Stage(Layout{Base: base, ConfigSubdir: "ad4m"}, filepath.Join(t.TempDir(), "missing.json"), nil)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("existing data must survive a bad identity path: %v", err)
	}
}

func TestStageRejectsDirectoryIdentity(t *testing.T) {
	err := CheckIdentity(t.TempDir())
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStageFilesystemFailure(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Stage(Layout{Base: filepath.Join(blocker, "base"), ConfigSubdir: "ad4m"}, writeIdentity(t), nil)
	if !errors.Is(err, faults.ErrFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}
