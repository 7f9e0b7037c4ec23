// Package staging rebuilds the runtime data directory from an agent identity.
//
// Staging is destructive: whatever lives in the data directory is removed
// before the fresh tree is written. Callers are expected to have obtained
// operator confirmation first.
package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"seedctl/internal/faults"
	"seedctl/internal/fileutil"
	"seedctl/internal/logging"
)

const (
	component = "staging"

	// AgentFileName is the identity credential inside the config subtree.
	AgentFileName = "agent.json"
	// DIDCacheFileName is the placeholder cache inside the data subtree.
	DIDCacheFileName = "DIDCache.json"
	// DataSubdir is the runtime's data subtree.
	DataSubdir = "data"
)

// Layout names the directories of a staged runtime data tree.
type Layout struct {
	Base         string
	ConfigSubdir string
}

// ConfigDir returns the subtree holding agent.json.
func (l Layout) ConfigDir() string {
	return filepath.Join(l.Base, l.ConfigSubdir)
}

// DataDir returns the subtree holding DIDCache.json.
func (l Layout) DataDir() string {
	return filepath.Join(l.Base, DataSubdir)
}

// AgentPath returns the staged identity credential path.
func (l Layout) AgentPath() string {
	return filepath.Join(l.ConfigDir(), AgentFileName)
}

// DIDCachePath returns the staged cache file path.
func (l Layout) DIDCachePath() string {
	return filepath.Join(l.DataDir(), DIDCacheFileName)
}

// Result reports what staging produced.
type Result struct {
	AgentPath      string
	DIDCachePath   string
	IdentityDigest string
}

// CheckIdentity verifies that identityPath names a readable regular file.
// It touches nothing, so callers can run it before asking for confirmation.
func CheckIdentity(identityPath string) error {
	info, err := os.Stat(identityPath)
	if err != nil {
		return faults.Wrap(faults.ErrValidation, component, "inspect identity", identityPath, err)
	}
	if !info.Mode().IsRegular() {
		return faults.Wrap(faults.ErrValidation, component, "inspect identity", identityPath+" is not a regular file", nil)
	}
	file, err := os.Open(identityPath)
	if err != nil {
		return faults.Wrap(faults.ErrValidation, component, "open identity", identityPath, err)
	}
	return file.Close()
}

// Stage removes layout.Base and everything under it, then recreates the
// config and data subtrees containing exactly the identity credential and an
// empty JSON cache. Failures are fatal and not rolled back.
func Stage(layout Layout, identityPath string, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, component)
	if layout.Base == "" || layout.ConfigSubdir == "" {
		return Result{}, faults.Wrap(faults.ErrValidation, component, "stage", "layout is incomplete", nil)
	}
	if err := CheckIdentity(identityPath); err != nil {
		return Result{}, err
	}

	if _, err := os.Lstat(layout.Base); err == nil {
		logger.Warn("removing existing data directory", slog.String(logging.FieldPath, layout.Base))
		if err := os.RemoveAll(layout.Base); err != nil {
			return Result{}, faults.Wrap(faults.ErrFilesystem, component, "remove data directory", layout.Base, err)
		}
	} else if !os.IsNotExist(err) {
		return Result{}, faults.Wrap(faults.ErrFilesystem, component, "inspect data directory", layout.Base, err)
	}

	for _, dir := range []string{layout.Base, layout.ConfigDir(), layout.DataDir()} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return Result{}, faults.Wrap(faults.ErrFilesystem, component, "create directory", dir, err)
		}
	}

	digest, err := fileutil.CopyFileVerified(identityPath, layout.AgentPath(), 0o600)
	if err != nil {
		return Result{}, faults.Wrap(faults.ErrFilesystem, component, "copy identity", fmt.Sprintf("%s -> %s", identityPath, layout.AgentPath()), err)
	}
	if err := os.WriteFile(layout.DIDCachePath(), []byte("{}"), 0o644); err != nil {
		return Result{}, faults.Wrap(faults.ErrFilesystem, component, "write DID cache", layout.DIDCachePath(), err)
	}

	logger.Info("publishing agent directory staged",
		slog.String(logging.FieldPath, layout.Base),
		slog.String("identity_digest", digest[:16]),
	)
	return Result{
		AgentPath:      layout.AgentPath(),
		DIDCachePath:   layout.DIDCachePath(),
		IdentityDigest: digest,
	}, nil
}
