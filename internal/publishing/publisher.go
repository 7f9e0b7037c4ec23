package publishing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"seedctl/internal/faults"
	"seedctl/internal/fileutil"
	"seedctl/internal/logging"
	"seedctl/internal/seed"
)

const (
	component = "publishing"

	unlockMutation = `mutation agentUnlock($passphrase: String!) {
  agentUnlock(passphrase: $passphrase) { isInitialized isUnlocked did }
}`
	publishMutation = `mutation languagePublish($languagePath: String!, $languageMeta: LanguageMetaInput!) {
  languagePublish(languagePath: $languagePath, languageMeta: $languageMeta) { address name }
}`
)

// Config captures the settings the GraphQL publisher needs.
type Config struct {
	ExecutorURL     string
	AdminCredential string
	OutputPath      string
	RequestTimeout  time.Duration
}

// Published records one published language.
type Published struct {
	Role        seed.Role
	Path        string
	Name        string
	Address     string
	Fingerprint string
}

// Result describes a completed publishing sequence.
type Result struct {
	AgentDID  string
	Languages []Published
	SeedPath  string
	Seed      seed.Bootstrap
}

// Option customizes the GraphQL publisher.
type Option func(*GraphQLPublisher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *GraphQLPublisher) {
		if client != nil {
			p.client.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *GraphQLPublisher) {
		p.logger = logging.NewComponentLogger(logger, component)
	}
}

// GraphQLPublisher publishes through the runtime's GraphQL executor.
type GraphQLPublisher struct {
	client     *graphQLClient
	outputPath string
	logger     *slog.Logger
}

// NewGraphQLPublisher constructs a publisher for cfg.
func NewGraphQLPublisher(cfg Config, opts ...Option) *GraphQLPublisher {
	p := &GraphQLPublisher{
		client: &graphQLClient{
			url:        strings.TrimSpace(cfg.ExecutorURL),
			credential: strings.TrimSpace(cfg.AdminCredential),
			timeout:    cfg.RequestTimeout,
			httpClient: &http.Client{},
		},
		outputPath: cfg.OutputPath,
		logger:     logging.NewComponentLogger(nil, component),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type unlockPayload struct {
	AgentUnlock struct {
		IsInitialized bool   `json:"isInitialized"`
		IsUnlocked    bool   `json:"isUnlocked"`
		DID           string `json:"did"`
	} `json:"agentUnlock"`
}

type publishPayload struct {
	LanguagePublish struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"languagePublish"`
}

// Publish unlocks the agent, publishes every language in dependency order,
// and writes the final bootstrap seed to the configured output path.
func (p *GraphQLPublisher) Publish(ctx context.Context, req Request) (*Result, error) {
	if req.Descriptor == nil {
		return nil, faults.Wrap(faults.ErrValidation, component, "publish", "descriptor required", nil)
	}

	var unlocked unlockPayload
	if err := p.client.do(ctx, unlockMutation, map[string]any{"passphrase": req.Passphrase}, &unlocked); err != nil {
		return nil, faults.Wrap(faults.ErrPublish, component, "agent unlock", "", err)
	}
	if !unlocked.AgentUnlock.IsUnlocked {
		return nil, faults.Wrap(faults.ErrPublish, component, "agent unlock", "agent remained locked; check the passphrase", nil)
	}
	result := &Result{AgentDID: unlocked.AgentUnlock.DID}
	p.logger.Info("agent unlocked", slog.String("did", result.AgentDID))

	for _, lang := range req.Descriptor.Languages() {
		published, err := p.publishLanguage(ctx, lang)
		if err != nil {
			return result, err
		}
		result.Languages = append(result.Languages, published)
	}

	result.Seed = p.assemble(req, result)
	if p.outputPath != "" {
		if err := seed.Write(p.outputPath, result.Seed); err != nil {
			return result, err
		}
		result.SeedPath = p.outputPath
		p.logger.Info("bootstrap seed written",
			slog.String(logging.FieldPath, p.outputPath),
			slog.Int("languages", len(result.Languages)),
		)
	}
	return result, nil
}

func (p *GraphQLPublisher) publishLanguage(ctx context.Context, lang seed.Language) (Published, error) {
	data, err := os.ReadFile(lang.Path)
	if err != nil {
		return Published{}, faults.Wrap(faults.ErrPublish, component, "read bundle", lang.Path, err)
	}
	name := languageName(lang.Path)
	meta := map[string]any{
		"name":        name,
		"description": fmt.Sprintf("%s language published by seedctl", lang.Role),
	}

	var payload publishPayload
	vars := map[string]any{"languagePath": lang.Path, "languageMeta": meta}
	if err := p.client.do(ctx, publishMutation, vars, &payload); err != nil {
		return Published{}, faults.Wrap(faults.ErrPublish, component, "language publish", lang.Path, err)
	}
	address := strings.TrimSpace(payload.LanguagePublish.Address)
	if address == "" {
		return Published{}, faults.Wrap(faults.ErrPublish, component, "language publish", lang.Path+": empty address", nil)
	}

	published := Published{
		Role:        lang.Role,
		Path:        lang.Path,
		Name:        name,
		Address:     address,
		Fingerprint: fileutil.Fingerprint(data),
	}
	p.logger.Info("language published",
		slog.String("role", string(lang.Role)),
		slog.String("address", address),
		slog.String("fingerprint", published.Fingerprint),
	)
	return published, nil
}

func (p *GraphQLPublisher) assemble(req Request, result *Result) seed.Bootstrap {
	trusted := append([]string(nil), req.Descriptor.TrustedAgents...)
	if result.AgentDID != "" && !slices.Contains(trusted, result.AgentDID) {
		trusted = append(trusted, result.AgentDID)
	}
	out := seed.Bootstrap{
		TrustedAgents:          trusted,
		KnownLinkLanguages:     []string{},
		LanguageLanguageBundle: req.Source,
	}
	for _, lang := range result.Languages {
		switch lang.Role {
		case seed.RoleAgent:
			out.AgentLanguage = lang.Address
		case seed.RolePerspective:
			out.PerspectiveLanguage = lang.Address
		case seed.RoleNeighbourhood:
			out.NeighbourhoodLanguage = lang.Address
		case seed.RoleDirectMessage:
			out.DirectMessageLanguage = lang.Address
		case seed.RoleLinkLanguage:
			out.KnownLinkLanguages = append(out.KnownLinkLanguages, lang.Address)
		}
	}
	return out
}

func languageName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
