package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LanguageLanguageSource is the bundle text written by WriteSeedFixture.
const LanguageLanguageSource = "export default function create(context) { return { name: 'languages' } }\n"

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteIdentity writes a fake agent identity file and returns its path.
func WriteIdentity(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "publisher-agent.json")
	WriteFile(t, path, `{"did":"did:key:z6MkpublisherTest","keystore":"opaque"}`)
	return path
}

// WriteSeedFixture writes a seed prototype with every language role filled
// in, plus the referenced bundles, and returns the prototype path.
func WriteSeedFixture(t testing.TB, dir string) string {
	t.Helper()

	bundles := map[string]string{
		"languages.js":      LanguageLanguageSource,
		"agent.js":          "// agent language\n",
		"perspective.js":    "// perspective language\n",
		"neighbourhood.js":  "// neighbourhood language\n",
		"direct-message.js": "// direct message language\n",
		"social-context.js": "// link language\n",
	}
	for name, body := range bundles {
		WriteFile(t, filepath.Join(dir, "bundles", name), body)
	}

	proto := map[string]any{
		"trustedAgents":         []string{"did:key:z6MktrustedOne"},
		"knownLinkLanguages":    []string{"bundles/social-context.js"},
		"languageLanguageRef":   "bundles/languages.js",
		"directMessageLanguage": "bundles/direct-message.js",
		"agentLanguage":         "bundles/agent.js",
		"perspectiveLanguage":   "bundles/perspective.js",
		"neighbourhoodLanguage": "bundles/neighbourhood.js",
	}
	data, err := json.MarshalIndent(proto, "", "  ")
	if err != nil {
		t.Fatalf("marshal seed fixture: %v", err)
	}
	path := filepath.Join(dir, "seed-proto.json")
	WriteFile(t, path, string(data))
	return path
}
