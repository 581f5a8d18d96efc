// Package resolver selecciona, entre los listados públicos, el mercado con
// expiración más próxima que encaja en alguno de los shapes soportados.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
	"github.com/alejandrodnm/polysniper/internal/timeparse"
)

const alertTimeout = 10 * time.Second

// Config contiene la configuración del resolver.
type Config struct {
	Queries                 []string
	IncludeDaily            bool
	AssetKeywords           []string
	ResolutionKeywords      []string
	FifteenMinHorizon       time.Duration
	DailyHorizon            time.Duration
	FifteenMinMonitorWindow time.Duration
	DailyMonitorWindow      time.Duration
	Workers                 int // goroutines para queries en paralelo (0 = una por query)
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Queries:                 []string{"Bitcoin up or down", "Ethereum up or down", "Solana up or down"},
		IncludeDaily:            true,
		AssetKeywords:           []string{"bitcoin", "ethereum", "solana", "btc", "eth", "sol"},
		ResolutionKeywords:      []string{"above", "below", "reach"},
		FifteenMinHorizon:       5 * time.Hour,
		DailyHorizon:            24 * time.Hour,
		FifteenMinMonitorWindow: 5 * time.Minute,
		DailyMonitorWindow:      5 * time.Minute,
		Workers:                 4,
	}
}

// Resolver es el Market Candidate Resolver.
type Resolver struct {
	cfg      Config
	listings ports.ListingSource
	alerter  ports.Alerter
	now      func() time.Time

	previous map[string]bool // candidatos 15m vistos en la resolución anterior
}

// New crea un Resolver. alerter puede ser nil.
func New(cfg Config, listings ports.ListingSource, alerter ports.Alerter) *Resolver {
	return &Resolver{
		cfg:      cfg,
		listings: listings,
		alerter:  alerter,
		now:      time.Now,
		previous: make(map[string]bool),
	}
}

// WithClock reemplaza el reloj (tests).
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Stats resume una resolución para logs.
type Stats struct {
	Fetched       int
	Unique        int
	BadTime       int
	BadTokens     int
	Candidates    int
	FailedQueries int
}

// FindTarget devuelve el candidato con menor tiempo a expiración (estrictamente
// positivo). ok=false si no hay ninguno: el caller debe esperar antes de reintentar.
func (r *Resolver) FindTarget(ctx context.Context) (domain.MarketCandidate, bool, error) {
	candidates, err := r.Candidates(ctx)
	if err != nil {
		return domain.MarketCandidate{}, false, err
	}
	now := r.now()
	for _, c := range candidates {
		if c.TimeToExpiry(now) > 0 {
			return c, true, nil
		}
	}
	return domain.MarketCandidate{}, false, nil
}

// Candidates devuelve todos los candidatos válidos ordenados por expiración
// ascendente. Sólo devuelve error si ctx se canceló.
func (r *Resolver) Candidates(ctx context.Context) ([]domain.MarketCandidate, error) {
	start := time.Now()

	listings, errs := r.fetchConcurrent(ctx, r.queries())
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolver.Candidates: %w", err)
	}

	stats := Stats{Fetched: len(listings), FailedQueries: len(errs)}
	unique := dedupe(listings)
	stats.Unique = len(unique)

	now := r.now()
	candidates := make([]domain.MarketCandidate, 0, len(unique))
	for _, l := range unique {
		c, err := r.toCandidate(l, now)
		switch {
		case errors.Is(err, domain.ErrUnparseableTime):
			stats.BadTime++
			slog.Debug("resolver: dropped listing", "condition_id", l.ConditionID, "err", err)
			continue
		case errors.Is(err, domain.ErrUnparseableTokens):
			stats.BadTokens++
			slog.Debug("resolver: dropped listing", "condition_id", l.ConditionID, "err", err)
			continue
		case err != nil:
			continue
		}
		if c.ConditionID == "" {
			continue // no encaja en ningún shape
		}
		candidates = append(candidates, c)
	}

	rank(candidates)
	stats.Candidates = len(candidates)

	r.emitNewMarketAlerts(ctx, candidates)

	slog.Info("resolver: resolution complete",
		"fetched", stats.Fetched,
		"unique", stats.Unique,
		"candidates", stats.Candidates,
		"bad_time", stats.BadTime,
		"bad_tokens", stats.BadTokens,
		"failed_queries", stats.FailedQueries,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return candidates, nil
}

func (r *Resolver) queries() []query {
	qs := make([]query, 0, len(r.cfg.Queries)+1)
	for _, q := range r.cfg.Queries {
		qs = append(qs, query{text: q})
	}
	if r.cfg.IncludeDaily {
		qs = append(qs, query{active: true})
	}
	return qs
}

// toCandidate aplica filtros de shape, expiración y tokens. Un candidato con
// ConditionID vacío y err nil significa "no encaja", no es un error.
func (r *Resolver) toCandidate(l domain.Listing, now time.Time) (domain.MarketCandidate, error) {
	shape, end, err := r.classify(l, now)
	if err != nil {
		return domain.MarketCandidate{}, err
	}
	if shape == domain.ShapeOther || !end.After(now) {
		return domain.MarketCandidate{}, nil
	}

	st, err := extractTokens(l)
	if err != nil {
		return domain.MarketCandidate{}, err
	}

	c := domain.MarketCandidate{
		ConditionID:   l.ConditionID,
		Question:      l.Question,
		SideAToken:    st.aToken,
		SideBToken:    st.bToken,
		SideALabel:    st.aLabel,
		SideBLabel:    st.bLabel,
		EndTime:       end,
		Shape:         shape,
		MonitorWindow: r.monitorWindowFor(shape),
		NegRisk:       l.NegRisk,
	}
	if err := c.Validate(now); err != nil {
		return domain.MarketCandidate{}, err
	}
	return c, nil
}

// dedupe elimina listados repetidos por ConditionID; gana la primera aparición.
func dedupe(listings []domain.Listing) []domain.Listing {
	seen := make(map[string]bool, len(listings))
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if l.ConditionID == "" || seen[l.ConditionID] {
			continue
		}
		seen[l.ConditionID] = true
		out = append(out, l)
	}
	return out
}

// rank ordena por expiración ascendente; empates por ConditionID.
func rank(cs []domain.MarketCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].EndTime.Equal(cs[j].EndTime) {
			return cs[i].EndTime.Before(cs[j].EndTime)
		}
		return cs[i].ConditionID < cs[j].ConditionID
	})
}

// emitNewMarketAlerts avisa de candidatos 15m que no estaban en la resolución
// anterior. Es best-effort: los errores sólo se loguean.
func (r *Resolver) emitNewMarketAlerts(ctx context.Context, candidates []domain.MarketCandidate) {
	current := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.Shape != domain.ShapeFifteenMinute {
			continue
		}
		current[c.ConditionID] = true
		if r.previous[c.ConditionID] {
			continue // ya conocido
		}

		slog.Info("resolver: new 15m market available",
			"market", domain.TruncateQuestion(c.Question, c.ConditionID, 60),
			"ends_et", timeparse.FormatET(c.EndTime),
		)
		if r.alerter != nil {
			msg := fmt.Sprintf("%s\nends %s", c.Question, timeparse.FormatET(c.EndTime))
			go r.sendAlert(ctx, "New 15-minute market", msg)
		}
	}
	r.previous = current
}

// sendAlert corre en su propia goroutine para no bloquear la resolución.
func (r *Resolver) sendAlert(ctx context.Context, title, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := r.alerter.Alert(ctx, title, msg); err != nil {
		slog.Warn("resolver: alert failed", "err", err)
	}
}
