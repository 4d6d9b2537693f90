package scanner

import "github.com/alejandrodnm/polybet/internal/domain"

// Analyzer convierte un mercado (todos sus outcomes) en candidatos con edge.
type Analyzer struct {
	minSources int
}

// NewAnalyzer crea un Analyzer que exige minSources cotizaciones independientes.
func NewAnalyzer(minSources int) *Analyzer {
	if minSources <= 0 {
		minSources = domain.DefaultMinSources
	}
	return &Analyzer{minSources: minSources}
}

// Analyze estima los edges de un mercado. A las apuestas se les quita el vig
// sobre todo el mercado; las posiciones de precio se valoran outcome por
// outcome. Los outcomes rechazados vuelven como errores junto a los candidatos.
func (a *Analyzer) Analyze(m domain.MarketOutcomes) ([]domain.Candidate, []error) {
	if len(m.Outcomes) == 0 {
		return nil, nil
	}
	if !m.Outcomes[0].AssetClass.IsBet() {
		return a.analyzePositions(m)
	}

	edges, errs := domain.EstimateMarket(m, a.minSources)
	byOutcome := make(map[string]domain.Opportunity, len(m.Outcomes))
	for _, o := range m.Outcomes {
		byOutcome[o.OutcomeID] = o
	}
	out := make([]domain.Candidate, 0, len(edges))
	for _, e := range edges {
		o := byOutcome[e.OutcomeID]
		o.Price = e.BestPrice
		if err := o.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, domain.Candidate{Opportunity: o, Edge: e})
	}
	return out, errs
}

func (a *Analyzer) analyzePositions(m domain.MarketOutcomes) ([]domain.Candidate, []error) {
	var (
		out  []domain.Candidate
		errs []error
	)
	for _, o := range m.Outcomes {
		if err := o.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		e, err := domain.EstimatePosition(o, a.minSources)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, domain.Candidate{Opportunity: o, Edge: e})
	}
	return out, errs
}
