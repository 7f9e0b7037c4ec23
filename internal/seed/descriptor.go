package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"seedctl/internal/faults"
)

const component = "seed"

// Descriptor is the operator-supplied seed prototype. Language fields hold
// paths to bundle files; relative paths are resolved against the directory
// of the prototype file when it is loaded.
type Descriptor struct {
	TrustedAgents         []string `json:"trustedAgents" yaml:"trustedAgents"`
	KnownLinkLanguages    []string `json:"knownLinkLanguages" yaml:"knownLinkLanguages"`
	LanguageLanguageRef   string   `json:"languageLanguageRef" yaml:"languageLanguageRef"`
	DirectMessageLanguage string   `json:"directMessageLanguage" yaml:"directMessageLanguage"`
	AgentLanguage         string   `json:"agentLanguage" yaml:"agentLanguage"`
	PerspectiveLanguage   string   `json:"perspectiveLanguage" yaml:"perspectiveLanguage"`
	NeighbourhoodLanguage string   `json:"neighbourhoodLanguage" yaml:"neighbourhoodLanguage"`

	source string
}

// Role names the slot a published language fills in the final seed.
type Role string

const (
	RoleAgent         Role = "agent"
	RolePerspective   Role = "perspective"
	RoleNeighbourhood Role = "neighbourhood"
	RoleDirectMessage Role = "direct-message"
	RoleLinkLanguage  Role = "link-language"
)

// Language is one bundle scheduled for publishing.
type Language struct {
	Role Role
	Path string
}

// LoadDescriptor reads and validates the prototype at path. YAML is used for
// .yaml/.yml files; anything else is parsed as JSON with comments allowed.
// It has no side effects beyond reading the file.
func LoadDescriptor(path string) (*Descriptor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, faults.Wrap(faults.ErrValidation, component, "load prototype", "path is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, component, "read prototype", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, faults.Wrap(faults.ErrValidation, component, "parse prototype", path+" is empty", nil)
	}

	var desc Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &desc)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &desc)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, component, "parse prototype", path, err)
	}

	desc.source = path
	desc.normalize(filepath.Dir(path))
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate checks the fields the orchestration cannot run without.
func (d *Descriptor) Validate() error {
	if d == nil {
		return faults.Wrap(faults.ErrValidation, component, "validate prototype", "descriptor is nil", nil)
	}
	if d.LanguageLanguageRef == "" {
		return faults.Wrap(faults.ErrValidation, component, "validate prototype", "languageLanguageRef is required", nil)
	}
	for i, agent := range d.TrustedAgents {
		if !strings.HasPrefix(agent, "did:") {
			return faults.Wrap(faults.ErrValidation, component, "validate prototype",
				fmt.Sprintf("trustedAgents[%d] %q is not a DID", i, agent), nil)
		}
	}
	return nil
}

// Source returns the path the descriptor was loaded from.
func (d *Descriptor) Source() string {
	return d.source
}

// LanguageLanguageSource reads the language-language bundle referenced by
// the descriptor.
func (d *Descriptor) LanguageLanguageSource() (string, error) {
	data, err := os.ReadFile(d.LanguageLanguageRef)
	if err != nil {
		return "", faults.Wrap(faults.ErrValidation, component, "read language-language bundle", d.LanguageLanguageRef, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", faults.Wrap(faults.ErrValidation, component, "read language-language bundle", d.LanguageLanguageRef+" is empty", nil)
	}
	return string(data), nil
}

// Languages returns the bundles to publish in dependency order: the agent
// language first, then perspective, neighbourhood, direct-message, and
// finally every known link language. Unset roles are skipped.
func (d *Descriptor) Languages() []Language {
	out := make([]Language, 0, 4+len(d.KnownLinkLanguages))
	for _, lang := range []Language{
		{Role: RoleAgent, Path: d.AgentLanguage},
		{Role: RolePerspective, Path: d.PerspectiveLanguage},
		{Role: RoleNeighbourhood, Path: d.NeighbourhoodLanguage},
		{Role: RoleDirectMessage, Path: d.DirectMessageLanguage},
	} {
		if lang.Path != "" {
			out = append(out, lang)
		}
	}
	for _, path := range d.KnownLinkLanguages {
		out = append(out, Language{Role: RoleLinkLanguage, Path: path})
	}
	return out
}

func (d *Descriptor) normalize(baseDir string) {
	resolve := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	d.LanguageLanguageRef = resolve(d.LanguageLanguageRef)
	d.DirectMessageLanguage = resolve(d.DirectMessageLanguage)
	d.AgentLanguage = resolve(d.AgentLanguage)
	d.PerspectiveLanguage = resolve(d.PerspectiveLanguage)
	d.NeighbourhoodLanguage = resolve(d.NeighbourhoodLanguage)

	links := make([]string, 0, len(d.KnownLinkLanguages))
	for _, p := range d.KnownLinkLanguages {
		if p = resolve(p); p != "" {
			links = append(links, p)
		}
	}
	d.KnownLinkLanguages = links

	agents := make([]string, 0, len(d.TrustedAgents))
	for _, a := range d.TrustedAgents {
		if a = strings.TrimSpace(a); a != "" {
			agents = append(agents, a)
		}
	}
	d.TrustedAgents = agents
}
