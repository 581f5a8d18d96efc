package sniper_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/application/sniper"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

// stubTargets devuelve los targets en orden; el último se repite.
type stubTargets struct {
	mu         sync.Mutex
	targets    []domain.MarketCandidate
	err        error
	candidates []domain.MarketCandidate
	finds      atomic.Int32
}

func (s *stubTargets) FindTarget(context.Context) (domain.MarketCandidate, bool, error) {
	s.finds.Add(1)
	if s.err != nil {
		return domain.MarketCandidate{}, false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.targets) == 0 {
		return domain.MarketCandidate{}, false, nil
	}
	c := s.targets[0]
	if len(s.targets) > 1 {
		s.targets = s.targets[1:]
	}
	return c, true, nil
}

func (s *stubTargets) Candidates(context.Context) ([]domain.MarketCandidate, error) {
	return s.candidates, nil
}

type memJournal struct {
	saved chan domain.SessionOutcome
}

func newMemJournal() *memJournal {
	return &memJournal{saved: make(chan domain.SessionOutcome, 8)}
}

func (j *memJournal) SaveSession(_ context.Context, o domain.SessionOutcome) error {
	j.saved <- o
	return nil
}

func (j *memJournal) Close() error { return nil }

type countingReporter struct {
	sessions atomic.Int32
}

func (r *countingReporter) Candidates(context.Context, []domain.MarketCandidate) error { return nil }

func (r *countingReporter) Session(context.Context, domain.SessionOutcome) error {
	r.sessions.Add(1)
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
	msgs   []string
}

func (a *recordingAlerter) Alert(_ context.Context, title, msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	a.msgs = append(a.msgs, msg)
	return nil
}

func fastRunnerConfig() sniper.RunnerConfig {
	cfg := sniper.DefaultRunnerConfig()
	cfg.NoTargetBackoff = 10 * time.Millisecond
	cfg.PostSessionPause = 10 * time.Millisecond
	cfg.ErrorPause = 10 * time.Millisecond
	cfg.MaxSleep = 20 * time.Millisecond
	cfg.Session.TriggerWindow = 300 * time.Millisecond
	cfg.Gate = liveGateConfig()
	return cfg
}

func runWithTimeout(t *testing.T, r *sniper.Runner, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return")
	}
	return nil
}

func TestRunner_RunOnceWithoutTargetExits(t *testing.T) {
	targets := &stubTargets{}
	journal := newMemJournal()
	cfg := fastRunnerConfig()
	cfg.RunOnce = true

	r := sniper.NewRunner(cfg, sniper.Deps{Targets: targets, Stream: newFakeStream(), Journal: journal})

	require.NoError(t, runWithTimeout(t, r, context.Background()))
	assert.Equal(t, int32(1), targets.finds.Load())
	assert.Empty(t, journal.saved)
}

func TestRunner_RunOnceResolveErrorIsReturned(t *testing.T) {
	targets := &stubTargets{err: domain.ErrTransientFetch}
	cfg := fastRunnerConfig()
	cfg.RunOnce = true

	r := sniper.NewRunner(cfg, sniper.Deps{Targets: targets, Stream: newFakeStream()})

	err := runWithTimeout(t, r, context.Background())
	assert.ErrorIs(t, err, domain.ErrTransientFetch)
}

func TestRunner_RunOnceFiresAndRecords(t *testing.T) {
	target := testCandidate(time.Now().Add(400 * time.Millisecond))
	targets := &stubTargets{targets: []domain.MarketCandidate{target}}
	stream := newFakeStream()
	stream.updates <- ask("up", 0.97)
	exec := &fakeExecutor{placed: domain.PlacedOrder{CLOBOrderID: "0x9", Status: "matched"}}
	journal := newMemJournal()
	reporter := &countingReporter{}
	alerter := &recordingAlerter{}
	cfg := fastRunnerConfig()
	cfg.RunOnce = true

	r := sniper.NewRunner(cfg, sniper.Deps{
		Targets:  targets,
		Stream:   stream,
		Executor: exec,
		Journal:  journal,
		Reporter: reporter,
		Alerter:  alerter,
	})

	require.NoError(t, runWithTimeout(t, r, context.Background()))

	require.Len(t, journal.saved, 1)
	o := <-journal.saved
	assert.Equal(t, domain.StateFired, o.State)
	assert.NotEmpty(t, o.SessionID)
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, int32(1), reporter.sessions.Load())

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	require.Len(t, alerter.msgs, 1)
	assert.Contains(t, alerter.msgs[0], "BUY UP")
	assert.Contains(t, alerter.msgs[0], "0x9")
}

func TestRunner_SleepsUntilWindowAndReResolves(t *testing.T) {
	far := testCandidate(time.Now().Add(time.Hour))
	far.ConditionID = "0xfar"
	near := testCandidate(time.Now().Add(300 * time.Millisecond))
	targets := &stubTargets{targets: []domain.MarketCandidate{far, near}}
	journal := newMemJournal()
	cfg := fastRunnerConfig()
	cfg.RunOnce = true

	r := sniper.NewRunner(cfg, sniper.Deps{Targets: targets, Stream: newFakeStream(), Journal: journal})

	require.NoError(t, runWithTimeout(t, r, context.Background()))

	assert.Equal(t, int32(2), targets.finds.Load())
	require.Len(t, journal.saved, 1)
	o := <-journal.saved
	assert.Equal(t, "0xc", o.Candidate.ConditionID)
	assert.Equal(t, domain.StateExpired, o.State)
}

func TestRunner_UsesPrefetchedNextTarget(t *testing.T) {
	first := testCandidate(time.Now().Add(300 * time.Millisecond))
	second := testCandidate(time.Now().Add(900 * time.Millisecond))
	second.ConditionID = "0xnext"
	second.SideAToken, second.SideBToken = "up2", "down2"

	targets := &stubTargets{
		targets:    []domain.MarketCandidate{first},
		candidates: []domain.MarketCandidate{first, second},
	}
	journal := newMemJournal()
	cfg := fastRunnerConfig()
	cfg.PostSessionPause = 200 * time.Millisecond
	r := sniper.NewRunner(cfg, sniper.Deps{Targets: targets, Stream: newFakeStream(), Journal: journal})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var got []string
	for range 2 {
		select {
		case o := <-journal.saved:
			got = append(got, o.Candidate.ConditionID)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for sessions")
		}
	}
	finds := targets.finds.Load()
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"0xc", "0xnext"}, got)
	assert.Equal(t, int32(1), finds, "el segundo target viene del prefetch")
}

func TestRunner_StopsOnCancelDuringBackoff(t *testing.T) {
	targets := &stubTargets{err: errors.New("gamma down")}
	cfg := fastRunnerConfig()
	cfg.ErrorPause = time.Hour

	r := sniper.NewRunner(cfg, sniper.Deps{Targets: targets, Stream: newFakeStream()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	assert.NoError(t, runWithTimeout(t, r, ctx))
}
