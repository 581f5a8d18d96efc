package resolver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polysniper/internal/application/resolver"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 19, 19, 0, 0, 0, time.UTC)

type stubListings struct {
	mu       sync.Mutex
	byQuery  map[string][]domain.Listing
	failing  map[string]bool
	active   []domain.Listing
	searched []string
}

func (s *stubListings) Search(_ context.Context, q string) ([]domain.Listing, error) {
	s.mu.Lock()
	s.searched = append(s.searched, q)
	s.mu.Unlock()
	if s.failing[q] {
		return nil, errors.New("gamma: 502 bad gateway")
	}
	return s.byQuery[q], nil
}

func (s *stubListings) ActiveListings(_ context.Context) ([]domain.Listing, error) {
	return s.active, nil
}

type chanAlerter struct {
	titles chan string
}

func (a *chanAlerter) Alert(_ context.Context, title, _ string) error {
	a.titles <- title
	return nil
}

func upDown(id string, end time.Time) domain.Listing {
	return domain.Listing{
		ConditionID:  id,
		Question:     "Bitcoin Up or Down - October 19, 3:00PM-3:15PM ET",
		EndDate:      end.Format(time.RFC3339),
		Active:       true,
		ClobTokenIDs: []string{id + "-up", id + "-down"},
		Outcomes:     []string{"Up", "Down"},
	}
}

func testConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	cfg.Queries = []string{"btc", "eth"}
	cfg.IncludeDaily = false
	return cfg
}

func newResolver(cfg resolver.Config, src *stubListings) *resolver.Resolver {
	return resolver.New(cfg, src, nil).WithClock(func() time.Time { return now })
}

func TestFindTarget_PicksSoonestExpiry(t *testing.T) {
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {upDown("0xlate", now.Add(30*time.Minute)), upDown("0xsoon", now.Add(10*time.Minute))},
		"eth": {upDown("0xmid", now.Add(20*time.Minute))},
	}}

	c, ok, err := newResolver(testConfig(), src).FindTarget(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xsoon", c.ConditionID)
	assert.Equal(t, "0xsoon-up", c.SideAToken)
	assert.Equal(t, "0xsoon-down", c.SideBToken)
	assert.Equal(t, domain.ShapeFifteenMinute, c.Shape)
	assert.Equal(t, 5*time.Minute, c.MonitorWindow)
	assert.True(t, c.EndTime.Equal(now.Add(10*time.Minute)))
}

func TestFindTarget_NeverSelectsExpired(t *testing.T) {
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {
			upDown("0xpast", now.Add(-time.Minute)),
			upDown("0xnow", now),
			upDown("0xfuture", now.Add(2*time.Minute)),
		},
	}}

	c, ok, err := newResolver(testConfig(), src).FindTarget(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xfuture", c.ConditionID)
}

func TestFindTarget_NoneWhenAllExpired(t *testing.T) {
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {upDown("0xpast", now.Add(-time.Minute))},
	}}

	_, ok, err := newResolver(testConfig(), src).FindTarget(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCandidates_DeduplicatesAcrossQueries(t *testing.T) {
	dup := upDown("0xdup", now.Add(10*time.Minute))
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {dup, dup, dup},
		"eth": {dup},
	}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "0xdup", cs[0].ConditionID)
}

func TestCandidates_FailedQueryIsIsolated(t *testing.T) {
	src := &stubListings{
		byQuery: map[string][]domain.Listing{"eth": {upDown("0xeth", now.Add(10*time.Minute))}},
		failing: map[string]bool{"btc": true},
	}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "0xeth", cs[0].ConditionID)
	assert.ElementsMatch(t, []string{"btc", "eth"}, src.searched)
}

func TestCandidates_DropsClosedAndMalformed(t *testing.T) {
	closed := upDown("0xclosed", now.Add(10*time.Minute))
	closed.Closed = true

	malformed := upDown("0xbad", now.Add(10*time.Minute))
	malformed.TokensMalformed = true

	oneSided := upDown("0xone", now.Add(10*time.Minute))
	oneSided.ClobTokenIDs = []string{"only"}

	sameToken := upDown("0xsame", now.Add(10*time.Minute))
	sameToken.ClobTokenIDs = []string{"t", "t"}

	noDate := upDown("0xnodate", now.Add(10*time.Minute))
	noDate.EndDate = ""
	noDate.Question = "Bitcoin Up or Down today?"

	good := upDown("0xgood", now.Add(10*time.Minute))

	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {closed, malformed, oneSided, sameToken, noDate, good},
	}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "0xgood", cs[0].ConditionID)
}

func TestCandidates_FallsBackToQuestionTime(t *testing.T) {
	l := upDown("0xq", time.Time{})
	l.EndDate = ""
	l.Question = "Bitcoin Up or Down - October 19, 3:15PM ET"

	src := &stubListings{byQuery: map[string][]domain.Listing{"btc": {l}}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	// 3:15 PM EDT = 19:15 UTC
	assert.True(t, cs[0].EndTime.Equal(time.Date(2025, 10, 19, 19, 15, 0, 0, time.UTC)))
}

func TestCandidates_YesNoOutcomesMapByIndex(t *testing.T) {
	l := upDown("0xyn", now.Add(10*time.Minute))
	l.Outcomes = []string{"No", "Yes"}
	l.ClobTokenIDs = []string{"tok-no", "tok-yes"}

	src := &stubListings{byQuery: map[string][]domain.Listing{"btc": {l}}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "tok-yes", cs[0].SideAToken)
	assert.Equal(t, "tok-no", cs[0].SideBToken)
	assert.Equal(t, "YES", cs[0].SideALabel)
}

func TestCandidates_HorizonFiltersFarMarkets(t *testing.T) {
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {upDown("0xfar", now.Add(6*time.Hour)), upDown("0xnear", now.Add(4*time.Hour))},
	}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "0xnear", cs[0].ConditionID)
}

func TestCandidates_DailyShape(t *testing.T) {
	daily := domain.Listing{
		ConditionID:  "0xdaily",
		Question:     "Will Bitcoin reach $120,000 on October 19?",
		EndDate:      now.Add(3 * time.Hour).Format(time.RFC3339),
		ClobTokenIDs: []string{"y", "n"},
		Outcomes:     []string{"Yes", "No"},
	}
	unrelated := domain.Listing{
		ConditionID:  "0xmethod",
		Question:     "Will the new method reach production?",
		EndDate:      now.Add(3 * time.Hour).Format(time.RFC3339),
		ClobTokenIDs: []string{"y2", "n2"},
		Outcomes:     []string{"Yes", "No"},
	}

	cfg := testConfig()
	cfg.IncludeDaily = true
	cfg.DailyMonitorWindow = 10 * time.Minute
	src := &stubListings{active: []domain.Listing{daily, unrelated}}

	cs, err := newResolver(cfg, src).Candidates(context.Background())

	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "0xdaily", cs[0].ConditionID)
	assert.Equal(t, domain.ShapeDaily, cs[0].Shape)
	assert.Equal(t, 10*time.Minute, cs[0].MonitorWindow)
}

func TestCandidates_DailyDisabled(t *testing.T) {
	daily := domain.Listing{
		ConditionID:  "0xdaily",
		Question:     "Will Bitcoin reach $120,000 on October 19?",
		EndDate:      now.Add(3 * time.Hour).Format(time.RFC3339),
		ClobTokenIDs: []string{"y", "n"},
		Outcomes:     []string{"Yes", "No"},
	}
	src := &stubListings{active: []domain.Listing{daily}}

	cs, err := newResolver(testConfig(), src).Candidates(context.Background())

	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestCandidates_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newResolver(testConfig(), &stubListings{}).Candidates(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidates_AlertsOnlyOnFirstObservation(t *testing.T) {
	src := &stubListings{byQuery: map[string][]domain.Listing{
		"btc": {upDown("0xnew", now.Add(10*time.Minute))},
	}}
	alerter := &chanAlerter{titles: make(chan string, 4)}
	r := resolver.New(testConfig(), src, alerter).WithClock(func() time.Time { return now })

	_, err := r.Candidates(context.Background())
	require.NoError(t, err)

	select {
	case title := <-alerter.titles:
		assert.Contains(t, title, "15-minute")
	case <-time.After(time.Second):
		t.Fatal("expected an alert for the new market")
	}

	_, err = r.Candidates(context.Background())
	require.NoError(t, err)

	select {
	case title := <-alerter.titles:
		t.Fatalf("unexpected second alert: %s", title)
	case <-time.After(100 * time.Millisecond):
	}
}
