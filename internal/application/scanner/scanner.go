package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
)

// Config contiene la configuración del scanner.
type Config struct {
	MinSources   int
	Workers      int           // goroutines para análisis paralelo (0 = NumCPU*2)
	FetchTimeout time.Duration // límite para la llamada al feed
	AlertEV      float64       // EV a partir del cual un candidato nuevo se loguea como alerta (0 = off)
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		MinSources:   domain.DefaultMinSources,
		FetchTimeout: 15 * time.Second,
		AlertEV:      0.05,
	}
}

// Stats cuenta lo que pasó con el snapshot del feed en un escaneo.
type Stats struct {
	Fetched       int
	Expired       int
	Markets       int
	Invalid       int
	LowConfidence int
	Unavailable   int
	Candidates    int
	Positive      int
}

// Scanner convierte el snapshot del feed en candidatos ordenados por EV.
type Scanner struct {
	cfg      Config
	feed     ports.OpportunityFeed
	notifier ports.Notifier
	analyzer *Analyzer
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]bool // candidatos con alerta emitida en el ciclo anterior
}

// New crea un Scanner con todas las dependencias inyectadas. notifier puede ser nil.
func New(cfg Config, feed ports.OpportunityFeed, notifier ports.Notifier) *Scanner {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Scanner{
		cfg:      cfg,
		feed:     feed,
		notifier: notifier,
		analyzer: NewAnalyzer(cfg.MinSources),
		now:      time.Now,
		seen:     make(map[string]bool),
	}
}

// Scan hace fetch → descarta expiradas → agrupa por mercado → análisis
// concurrente → ranking. Devuelve todos los candidatos con edge, positivos o no;
// los filtros de cada estrategia deciden.
func (s *Scanner) Scan(ctx context.Context) ([]domain.Candidate, Stats, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	opps, err := s.feed.FetchOpportunities(fetchCtx)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("scanner.Scan: fetch opportunities: %w", err)
	}

	now := s.now()
	live := make([]domain.Opportunity, 0, len(opps))
	expired := 0
	for _, o := range opps {
		if o.Expired(now) {
			expired++
			slog.Debug("scanner: opportunity expired", "id", o.ID, "outcome", o.OutcomeID, "err", domain.ErrDataUnavailable)
			continue
		}
		live = append(live, o)
	}

	candidates, stats := analyzeMarketsConcurrent(ctx, s.analyzer, domain.GroupByMarket(live), s.cfg.Workers)
	if err := ctx.Err(); err != nil {
		return nil, stats, fmt.Errorf("scanner.Scan: %w", err)
	}
	stats.Fetched = len(opps)
	stats.Expired = expired
	stats.Candidates = len(candidates)
	for _, c := range candidates {
		if c.Edge.Positive() {
			stats.Positive++
		}
	}

	ranked := rankByEV(candidates)
	s.emitAlerts(ranked)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, ranked); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return ranked, stats, nil
}

// emitAlerts loguea los candidatos nuevos con EV por encima del umbral de alerta.
func (s *Scanner) emitAlerts(cands []domain.Candidate) {
	if s.cfg.AlertEV <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := make(map[string]bool, len(cands))
	for _, c := range cands {
		if c.Edge.EVPct < s.cfg.AlertEV {
			continue
		}
		key := c.Opportunity.Key()
		current[key] = true
		if s.seen[key] {
			continue // ya conocido
		}
		slog.Warn("NEW EDGE",
			"opportunity", c.Opportunity.ID,
			"outcome", c.Opportunity.OutcomeID,
			"market_type", c.Opportunity.MarketType.String(),
			"asset_class", c.Opportunity.AssetClass.String(),
			"ev", fmt.Sprintf("%.2f%%", c.Edge.EVPct*100),
			"fair_prob", fmt.Sprintf("%.4f", c.Edge.FairProbability),
			"best_price", c.Edge.BestPrice,
			"best_source", c.Edge.BestSource,
			"sources", c.Edge.Sources,
		)
	}
	s.seen = current
}

// rankByEV ordena por EV descendente; empates por id para un orden estable.
func rankByEV(cands []domain.Candidate) []domain.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Edge.EVPct != cands[j].Edge.EVPct {
			return cands[i].Edge.EVPct > cands[j].Edge.EVPct
		}
		return cands[i].Opportunity.Key() < cands[j].Opportunity.Key()
	})
	return cands
}
