package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"seedctl/internal/bootstrap"
	"seedctl/internal/config"
	"seedctl/internal/faults"
	"seedctl/internal/history"
	"seedctl/internal/logging"
	"seedctl/internal/publishing"
	"seedctl/internal/readiness"
	"seedctl/internal/seed"
	"seedctl/internal/testsupport"
)

type recordingPublisher struct {
	mu        sync.Mutex
	requests  []publishing.Request
	err       error
	onPublish func()
}

func (p *recordingPublisher) Publish(ctx context.Context, req publishing.Request) (*publishing.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.onPublish != nil {
		p.onPublish()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &publishing.Result{AgentDID: "did:key:z6Mkpublisher", SeedPath: "/out/bootstrapSeed.json"}, nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type scriptedConfirmer struct {
	answer bool
	calls  int
}

func (c *scriptedConfirmer) Confirm(context.Context, string) (bool, error) {
	c.calls++
	return c.answer, nil
}

type fixture struct {
	cfg        *config.Config
	agent      string
	descriptor string
	stdout     *bytes.Buffer
	publisher  *recordingPublisher
	ledger     *history.Store
}

func newFixture(t *testing.T, stub testsupport.StubRuntime, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubRuntime(stub)}, opts...)...)
	inputs := t.TempDir()
	ledger, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return &fixture{
		cfg:        cfg,
		agent:      testsupport.WriteIdentity(t, inputs),
		descriptor: testsupport.WriteSeedFixture(t, inputs),
		stdout:     &bytes.Buffer{},
		publisher:  &recordingPublisher{},
		ledger:     ledger,
	}
}

func (f *fixture) runner(t *testing.T, confirmer bootstrap.Confirmer) *bootstrap.Runner {
	t.Helper()
	r, err := bootstrap.NewRunner(f.cfg,
		bootstrap.WithConfirmer(confirmer),
		bootstrap.WithOutput(f.stdout, &bytes.Buffer{}),
		bootstrap.WithPublisher(f.publisher),
		bootstrap.WithLedger(f.ledger),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func (f *fixture) options() bootstrap.Options {
	return bootstrap.Options{
		AgentPath:      f.agent,
		Passphrase:     "correct horse",
		DescriptorPath: f.descriptor,
	}
}

func seedExistingDataDir(t *testing.T, dir string) string {
	t.Helper()
	keep := filepath.Join(dir, "ad4m", "agent.json")
	testsupport.WriteFile(t, keep, "previous agent")
	return keep
}

func TestRunDeclinedLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{})
	keep := seedExistingDataDir(t, f.cfg.Paths.DataDir)

	report, err := f.runner(t, &scriptedConfirmer{answer: false}).Run(context.Background(), f.options())
	if !errors.Is(err, faults.ErrAborted) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if report.Status != history.StatusAborted {
		t.Fatalf("unexpected status %s", report.Status)
	}
	data, err := os.ReadFile(keep)
	if err != nil || string(data) != "previous agent" {
		t.Fatalf("existing agent must survive a declined run: %q %v", data, err)
	}
	if _, err := os.Stat(f.cfg.LockPath()); !os.IsNotExist(err) {
		t.Fatalf("declined run must not create the lock file, stat err=%v", err)
	}
	if calls := testsupport.ReadCalls(t, f.cfg.Runtime.Binary); len(calls) != 0 {
		t.Fatalf("runtime must not be invoked, got %v", calls)
	}
	runs, _ := f.ledger.List(context.Background(), 0)
	if len(runs) != 0 {
		t.Fatalf("declined run must not be recorded, got %d", len(runs))
	}
}

func TestRunBadDescriptorAbortsBeforePrompt(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{})
	keep := seedExistingDataDir(t, f.cfg.Paths.DataDir)
	bad := filepath.Join(t.TempDir(), "broken.json")
	testsupport.WriteFile(t, bad, `{"trustedAgents": [`)

	confirmer := &scriptedConfirmer{answer: true}
	opts := f.options()
	opts.DescriptorPath = bad
	_, err := f.runner(t, confirmer).Run(context.Background(), opts)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if confirmer.calls != 0 {
		t.Fatal("operator must not be prompted for a run that cannot succeed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("existing data must be untouched: %v", err)
	}
}

func TestRunMissingIdentityAbortsBeforePrompt(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{})
	confirmer := &scriptedConfirmer{answer: true}
	opts := f.options()
	opts.AgentPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := f.runner(t, confirmer).Run(context.Background(), opts); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if confirmer.calls != 0 {
		t.Fatal("operator must not be prompted")
	}
}

func TestRunPublishesAndExitsAfterPublish(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{
		InitLines:  []string{"init complete"},
		ServeLines: []string{"booting", testsupport.ReadyLine, "holochain starting", testsupport.ReadyLine},
		Hold:       true,
	})
	seedExistingDataDir(t, f.cfg.Paths.DataDir)
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.DataDir, "stale.db"), "stale")

	opts := f.options()
	opts.ExitAfterPublish = true
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := f.runner(t, bootstrap.AssumeYes{}).Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != history.StatusPublished || !report.Ready {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected one publish, got %d", f.publisher.count())
	}
	req := f.publisher.requests[0]
	if req.Passphrase != "correct horse" || req.Source != testsupport.LanguageLanguageSource {
		t.Fatalf("unexpected publish request %+v", req)
	}

	out := f.stdout.String()
	for _, want := range []string{"init complete", "booting", readiness.Marker, "holochain starting"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in relayed output:\n%s", want, out)
		}
	}
	if strings.Index(out, "booting") > strings.Index(out, "holochain starting") {
		t.Fatalf("lines relayed out of order:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(f.cfg.Paths.DataDir, "stale.db")); !os.IsNotExist(err) {
		t.Fatal("stale data must be removed by staging")
	}
	agent, _ := os.ReadFile(filepath.Join(f.cfg.Paths.DataDir, "ad4m", "agent.json"))
	identity, _ := os.ReadFile(f.agent)
	if string(agent) != string(identity) {
		t.Fatal("identity not staged")
	}
	cache, _ := os.ReadFile(filepath.Join(f.cfg.Paths.DataDir, "data", "DIDCache.json"))
	if string(cache) != "{}" {
		t.Fatalf("unexpected DID cache %q", cache)
	}

	raw, err := os.ReadFile(report.BootstrapPath)
	if err != nil {
		t.Fatalf("read temporary bootstrap: %v", err)
	}
	var temp map[string]any
	if err := json.Unmarshal(raw, &temp); err != nil {
		t.Fatalf("decode temporary bootstrap: %v", err)
	}
	if temp["languageLanguageBundle"] != testsupport.LanguageLanguageSource {
		t.Fatalf("unexpected bundle in temporary bootstrap")
	}
	if agents, ok := temp["trustedAgents"].([]any); !ok || len(agents) != 0 {
		t.Fatalf("trustedAgents must be an empty list, got %v", temp["trustedAgents"])
	}
	if report.BootstrapPath != filepath.Join(f.cfg.Paths.DataDir, seed.TemporaryFileName) {
		t.Fatalf("unexpected bootstrap path %s", report.BootstrapPath)
	}

	calls := testsupport.ReadCalls(t, f.cfg.Runtime.Binary)
	if len(calls) != 2 {
		t.Fatalf("expected init and serve calls, got %v", calls)
	}
	if calls[0] != "init --networkBootstrapSeed "+report.BootstrapPath+" --overrideConfig" || calls[1] != "serve" {
		t.Fatalf("unexpected runtime calls %v", calls)
	}

	run, err := f.ledger.Get(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if run.Status != history.StatusPublished || !run.Dispatched || run.SeedPath != "/out/bootstrapSeed.json" {
		t.Fatalf("unexpected ledger entry %+v", run)
	}
}

func TestRunWithoutMarkerEndsWithoutDispatch(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{ServeLines: []string{"starting", "crashed"}, ServeExit: 1})
	report, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("stream end without marker is not an error: %v", err)
	}
	if report.Status != history.StatusEnded || report.Ready || report.Lines != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !errors.Is(report.RuntimeErr, faults.ErrProcess) {
		t.Fatalf("runtime exit should be reported, got %v", report.RuntimeErr)
	}
	if f.publisher.count() != 0 {
		t.Fatal("publisher must not run without readiness")
	}
	run, _ := f.ledger.Get(context.Background(), report.RunID)
	if run.Status != history.StatusEnded || run.Dispatched {
		t.Fatalf("unexpected ledger entry %+v", run)
	}
}

func TestRunInitFailureIsProcessError(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{InitExit: 2})
	report, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), f.options())
	if !errors.Is(err, faults.ErrProcess) {
		t.Fatalf("expected process error, got %v", err)
	}
	if calls := testsupport.ReadCalls(t, f.cfg.Runtime.Binary); len(calls) != 1 {
		t.Fatalf("serve must not start after init fails, got %v", calls)
	}
	run, _ := f.ledger.Get(context.Background(), report.RunID)
	if run.Status != history.StatusFailed || run.ErrorKind != "process" {
		t.Fatalf("unexpected ledger entry %+v", run)
	}
}

func TestRunReadyTimeoutStopsRuntime(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{ServeLines: []string{"waiting"}, Hold: true})
	opts := f.options()
	opts.ReadyTimeout = 300 * time.Millisecond

	_, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), opts)
	if !errors.Is(err, readiness.ErrNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}

func TestRunPublishFailureIsReported(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{ServeLines: []string{testsupport.ReadyLine}})
	f.publisher.err = faults.Wrap(faults.ErrPublish, "publishing", "agent unlock", "locked", nil)

	report, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), f.options())
	if !errors.Is(err, faults.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if report.Status != history.StatusFailed || report.Published != nil {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{})
	held := flock.New(f.cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("acquire test lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	_, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), f.options())
	if !errors.Is(err, faults.ErrValidation) || !strings.Contains(err.Error(), "another run") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestRunDeclinedOpensNoLogOrLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubRuntime(testsupport.StubRuntime{}))
	inputs := t.TempDir()
	opened := 0
	r, err := bootstrap.NewRunner(cfg,
		bootstrap.WithConfirmer(&scriptedConfirmer{answer: false}),
		bootstrap.WithOutput(&bytes.Buffer{}, &bytes.Buffer{}),
		bootstrap.WithPublisher(&recordingPublisher{}),
		bootstrap.WithLogOpener(func() (*slog.Logger, error) {
			opened++
			return logging.NewFromConfig(cfg, "")
		}),
		bootstrap.WithLedgerOpener(func() (*history.Store, error) {
			opened++
			return history.Open(cfg)
		}),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	_, err = r.Run(context.Background(), bootstrap.Options{
		AgentPath:      testsupport.WriteIdentity(t, inputs),
		Passphrase:     "pw",
		DescriptorPath: testsupport.WriteSeedFixture(t, inputs),
	})
	if !errors.Is(err, faults.ErrAborted) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if opened != 0 {
		t.Fatalf("log file and ledger must not be opened before confirmation, opened %d", opened)
	}
	if _, err := os.Stat(cfg.Paths.LogDir); !os.IsNotExist(err) {
		t.Fatalf("log dir must not be created, stat err=%v", err)
	}
}

func TestRunOpensLedgerAfterConfirmation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubRuntime(testsupport.StubRuntime{ServeLines: []string{"done"}}))
	inputs := t.TempDir()
	r, err := bootstrap.NewRunner(cfg,
		bootstrap.WithConfirmer(bootstrap.AssumeYes{}),
		bootstrap.WithOutput(&bytes.Buffer{}, &bytes.Buffer{}),
		bootstrap.WithPublisher(&recordingPublisher{}),
		bootstrap.WithLogOpener(func() (*slog.Logger, error) { return logging.NewFromConfig(cfg, "") }),
		bootstrap.WithLedgerOpener(func() (*history.Store, error) { return history.Open(cfg) }),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	report, err := r.Run(context.Background(), bootstrap.Options{
		AgentPath:      testsupport.WriteIdentity(t, inputs),
		Passphrase:     "pw",
		DescriptorPath: testsupport.WriteSeedFixture(t, inputs),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()
	run, err := store.Get(context.Background(), report.RunID)
	if err != nil || run.Status != history.StatusEnded {
		t.Fatalf("expected ended run in ledger, got %+v err=%v", run, err)
	}
	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "seedctl.log"))
	if err != nil || !strings.Contains(string(content), report.RunID) {
		t.Fatalf("expected run log with run id, err=%v", err)
	}
}

// slowLedger holds MarkDispatched until the publisher has been invoked, or
// gives up after a while and remembers that it had to.
type slowLedger struct {
	*history.Store
	published chan struct{}
	timedOut  bool
}

func (l *slowLedger) MarkDispatched(ctx context.Context, id string) error {
	select {
	case <-l.published:
	case <-time.After(3 * time.Second):
		l.timedOut = true
	}
	return l.Store.MarkDispatched(ctx, id)
}

func TestRunDispatchIsNotDelayedByLedger(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{ServeLines: []string{testsupport.ReadyLine, "after"}})
	ledger := &slowLedger{Store: f.ledger, published: make(chan struct{})}
	var once sync.Once
	f.publisher.onPublish = func() { once.Do(func() { close(ledger.published) }) }

	r, err := bootstrap.NewRunner(f.cfg,
		bootstrap.WithConfirmer(bootstrap.AssumeYes{}),
		bootstrap.WithOutput(f.stdout, &bytes.Buffer{}),
		bootstrap.WithPublisher(f.publisher),
		bootstrap.WithLedger(ledger),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	report, err := r.Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ledger.timedOut {
		t.Fatal("publishing waited for the ledger write")
	}
	run, _ := f.ledger.Get(context.Background(), report.RunID)
	if !run.Dispatched || run.Status != history.StatusPublished {
		t.Fatalf("unexpected ledger entry %+v", run)
	}
}

func TestRunWithConfigSubdirLayout(t *testing.T) {
	f := newFixture(t, testsupport.StubRuntime{ServeLines: []string{testsupport.ReadyLine}}, testsupport.WithConfigSubdir("config"))

	report, err := f.runner(t, bootstrap.AssumeYes{}).Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != history.StatusPublished {
		t.Fatalf("unexpected status %s", report.Status)
	}
	agent, err := os.ReadFile(filepath.Join(f.cfg.Paths.DataDir, "config", "agent.json"))
	if err != nil {
		t.Fatalf("identity not staged under config/: %v", err)
	}
	identity, _ := os.ReadFile(f.agent)
	if string(agent) != string(identity) {
		t.Fatal("staged identity differs from the source")
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.DataDir, "ad4m")); !os.IsNotExist(err) {
		t.Fatalf("default subtree must not be created, stat err=%v", err)
	}
	if cache, _ := os.ReadFile(filepath.Join(f.cfg.Paths.DataDir, "data", "DIDCache.json")); string(cache) != "{}" {
		t.Fatalf("unexpected DID cache %q", cache)
	}
}
