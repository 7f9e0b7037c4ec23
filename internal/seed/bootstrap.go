package seed

import (
	"encoding/json"
	"os"
	"path/filepath"

	"seedctl/internal/faults"
	"seedctl/internal/fileutil"
)

// TemporaryFileName is the name of the publishing bootstrap inside the
// staged data directory.
const TemporaryFileName = "publishing_bootstrap.json"

// Bootstrap is the network bootstrap seed consumed by the runtime's init
// command.
type Bootstrap struct {
	TrustedAgents          []string `json:"trustedAgents"`
	KnownLinkLanguages     []string `json:"knownLinkLanguages"`
	LanguageLanguageBundle string   `json:"languageLanguageBundle"`
	DirectMessageLanguage  string   `json:"directMessageLanguage"`
	AgentLanguage          string   `json:"agentLanguage"`
	PerspectiveLanguage    string   `json:"perspectiveLanguage"`
	NeighbourhoodLanguage  string   `json:"neighbourhoodLanguage"`
}

// Temporary builds the non-networked publishing bootstrap: no trusted agents,
// no link languages, every language address empty, only the
// language-language bundle populated.
func Temporary(languageLanguageBundle string) Bootstrap {
	return Bootstrap{
		TrustedAgents:          []string{},
		KnownLinkLanguages:     []string{},
		LanguageLanguageBundle: languageLanguageBundle,
	}
}

// Encode serializes b. Nil lists are emitted as [] so the runtime never
// sees null.
func (b Bootstrap) Encode() ([]byte, error) {
	if b.TrustedAgents == nil {
		b.TrustedAgents = []string{}
	}
	if b.KnownLinkLanguages == nil {
		b.KnownLinkLanguages = []string{}
	}
	return json.Marshal(b)
}

// Write serializes b to path atomically.
func Write(path string, b Bootstrap) error {
	data, err := b.Encode()
	if err != nil {
		return faults.Wrap(faults.ErrSerialization, component, "encode bootstrap", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return faults.Wrap(faults.ErrSerialization, component, "write bootstrap", path, err)
	}
	return nil
}

// WriteTemporary writes the publishing bootstrap for the given
// language-language bundle into base and returns its path. The path is
// handed verbatim to the runtime's init command.
func WriteTemporary(base, languageLanguageBundle string) (string, error) {
	path := filepath.Join(base, TemporaryFileName)
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return "", faults.Wrap(faults.ErrSerialization, component, "write bootstrap", base+" is not a staged directory", err)
	}
	if err := Write(path, Temporary(languageLanguageBundle)); err != nil {
		return "", err
	}
	return path, nil
}

// ReadBootstrap decodes a bootstrap seed file.
func ReadBootstrap(path string) (Bootstrap, error) {
	var b Bootstrap
	data, err := os.ReadFile(path)
	if err != nil {
		return b, faults.Wrap(faults.ErrSerialization, component, "read bootstrap", path, err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, faults.Wrap(faults.ErrSerialization, component, "decode bootstrap", path, err)
	}
	return b, nil
}
