package feed

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// gameDuration se suma al inicio del evento para acotar cuánto puede vivir una apuesta.
const gameDuration = 4 * time.Hour

// mapOpportunities convierte el snapshot raw en una oportunidad por outcome.
func mapOpportunities(resp opportunitiesResponse, now time.Time) []domain.Opportunity {
	opps := make([]domain.Opportunity, 0, len(resp.Events)*4+len(resp.Positions))
	for _, ev := range resp.Events {
		opps = append(opps, mapEvent(ev, now)...)
	}
	for _, p := range resp.Positions {
		o, err := mapPosition(p, now)
		if err != nil {
			slog.Debug("feed: position skipped", "id", p.ID, "err", err)
			continue
		}
		opps = append(opps, o)
	}
	return opps
}

// mapEvent agrupa las cuotas de todos los bookmakers por (mercado, lado).
// Cada línea de spread o total distinta es un mercado propio.
func mapEvent(ev eventDTO, now time.Time) []domain.Opportunity {
	var (
		order []string
		byKey = make(map[string]*domain.Opportunity)
	)

	maxHold := gameDuration
	if ev.CommenceTime.After(now) {
		maxHold += ev.CommenceTime.Sub(now)
	}

	add := func(marketID string, mt domain.MarketType, side domain.Side, line float64, q domain.SourceQuote) {
		key := marketID + "|" + string(side)
		o, ok := byKey[key]
		if !ok {
			o = &domain.Opportunity{
				ID:             marketID,
				MarketID:       marketID,
				EventID:        ev.ID,
				HomeName:       ev.HomeTeam,
				AwayName:       ev.AwayTeam,
				OutcomeID:      string(side),
				Side:           side,
				MarketType:     mt,
				AssetClass:     domain.AssetSports,
				CorrelationTag: ev.ID,
				Line:           line,
				MaxHold:        maxHold,
				Timestamp:      now,
				Expiry:         ev.CommenceTime,
			}
			byKey[key] = o
			order = append(order, key)
		}
		o.Quotes = append(o.Quotes, q)
	}

	for _, bm := range ev.Bookmakers {
		for _, m := range bm.Markets {
			mt, err := domain.ParseMarketType(m.Key)
			if err != nil {
				slog.Debug("feed: market skipped", "event", ev.ID, "market", m.Key)
				continue
			}
			switch mt {
			case domain.MarketMoneyline:
				if !twoWay(ev, m.Outcomes) {
					// mercados con empate: quitar el vig sobre dos lados sería incorrecto
					slog.Debug("feed: three-way market skipped", "event", ev.ID, "bookmaker", bm.Key)
					continue
				}
				marketID := ev.ID + ":h2h"
				for _, out := range m.Outcomes {
					side, _ := teamSide(ev, out.Name)
					add(marketID, mt, side, 0, quote(bm, out.Price))
				}
			case domain.MarketSpread:
				homeLine, ok := homePoint(ev, m.Outcomes)
				if !ok {
					continue
				}
				marketID := fmt.Sprintf("%s:spreads:%s", ev.ID, formatLine(homeLine))
				for _, out := range m.Outcomes {
					side, ok := teamSide(ev, out.Name)
					if !ok {
						continue
					}
					line := homeLine
					if side == domain.SideAway {
						line = -homeLine
					}
					add(marketID, mt, side, line, quote(bm, out.Price))
				}
			case domain.MarketTotal:
				for _, out := range m.Outcomes {
					if out.Point == nil {
						continue
					}
					var side domain.Side
					switch strings.ToLower(out.Name) {
					case "over":
						side = domain.SideOver
					case "under":
						side = domain.SideUnder
					default:
						continue
					}
					marketID := fmt.Sprintf("%s:totals:%s", ev.ID, formatLine(*out.Point))
					add(marketID, mt, side, *out.Point, quote(bm, out.Price))
				}
			}
		}
	}

	opps := make([]domain.Opportunity, 0, len(order))
	for _, k := range order {
		opps = append(opps, *byKey[k])
	}
	return opps
}

func teamSide(ev eventDTO, name string) (domain.Side, bool) {
	switch {
	case strings.EqualFold(name, ev.HomeTeam):
		return domain.SideHome, true
	case strings.EqualFold(name, ev.AwayTeam):
		return domain.SideAway, true
	default:
		return "", false
	}
}

// twoWay indica si el mercado tiene exactamente los dos equipos como outcomes.
func twoWay(ev eventDTO, outs []outcomeDTO) bool {
	if len(outs) != 2 {
		return false
	}
	for _, out := range outs {
		if _, ok := teamSide(ev, out.Name); !ok {
			return false
		}
	}
	return true
}

// homePoint devuelve la línea del local; si solo viene la del visitante, la invierte.
func homePoint(ev eventDTO, outs []outcomeDTO) (float64, bool) {
	for _, out := range outs {
		if out.Point == nil {
			continue
		}
		switch side, _ := teamSide(ev, out.Name); side {
		case domain.SideHome:
			return *out.Point, true
		case domain.SideAway:
			return -*out.Point, true
		}
	}
	return 0, false
}

func quote(bm bookmakerDTO, price float64) domain.SourceQuote {
	return domain.SourceQuote{Source: bm.Key, Price: price, At: bm.LastUpdate}
}

func formatLine(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// mapPosition convierte una posición de precio. Devuelve error si la clase es desconocida.
func mapPosition(p positionDTO, now time.Time) (domain.Opportunity, error) {
	class, err := domain.ParseAssetClass(p.AssetClass)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if class.IsBet() {
		return domain.Opportunity{}, fmt.Errorf("%w: %s is a bet class, expected a price position", domain.ErrInvalidOpportunity, p.ID)
	}

	dir := domain.Long
	if strings.EqualFold(p.Direction, string(domain.Short)) {
		dir = domain.Short
	}
	outcome := strings.ToLower(strings.TrimSpace(p.Outcome))
	if outcome == "" {
		outcome = strings.ToLower(string(dir))
	}

	o := domain.Opportunity{
		ID:             p.ID,
		MarketID:       p.MarketID,
		EventID:        p.EventID,
		HomeName:       p.Question,
		OutcomeID:      outcome,
		MarketType:     domain.MarketMoneyline,
		AssetClass:     class,
		Symbol:         strings.ToUpper(strings.TrimSpace(p.Symbol)),
		CorrelationTag: p.CorrelationTag,
		Price:          p.Price,
		Target:         p.Target,
		Stop:           p.Stop,
		MaxHold:        time.Duration(p.MaxHoldHours * float64(time.Hour)),
		Direction:      dir,
		RecentPrices:   p.RecentPrices,
		Timestamp:      p.Timestamp,
	}
	if o.MarketID == "" {
		o.MarketID = p.ID
	}
	if o.EventID == "" {
		o.EventID = p.ID
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = now
	}
	if p.Expiry != nil {
		o.Expiry = *p.Expiry
	}
	switch domain.Side(outcome) {
	case domain.SideYes, domain.SideNo:
		o.Side = domain.Side(outcome)
	}
	for _, q := range p.Quotes {
		o.Quotes = append(o.Quotes, domain.SourceQuote{Source: q.Source, Price: q.Price, At: q.At})
	}
	return o, nil
}

// mapPrices devuelve precio por símbolo en mayúsculas; descarta precios no positivos.
func mapPrices(resp pricesResponse) map[string]float64 {
	out := make(map[string]float64, len(resp.Prices))
	for _, p := range resp.Prices {
		if p.Price <= 0 {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(p.Symbol))] = p.Price
	}
	return out
}

// mapScores convierte marcadores y precios de cierre en SettlementRecords.
func mapScores(raw []scoreDTO, now time.Time) []domain.SettlementRecord {
	out := make([]domain.SettlementRecord, 0, len(raw))
	for _, s := range raw {
		r := domain.SettlementRecord{
			EventID:    s.ID,
			HomeName:   s.HomeTeam,
			AwayName:   s.AwayTeam,
			Symbol:     strings.ToUpper(strings.TrimSpace(s.Symbol)),
			FinalPrice: s.FinalPrice,
			Completed:  s.Completed,
			Source:     s.Source,
			ObservedAt: now,
		}
		if s.LastUpdate != nil {
			r.ObservedAt = *s.LastUpdate
		}
		if r.Source == "" {
			r.Source = "feed"
		}
		if len(s.Scores) > 0 {
			home, away, ok := scoreValues(s)
			if ok {
				r.HomeValue, r.AwayValue = home, away
			} else if r.Completed {
				// un marcador ilegible no puede liquidar nada
				slog.Debug("feed: unparsable score", "event", s.ID)
				r.Completed = false
			}
		}
		out = append(out, r)
	}
	return out
}

// scoreValues asigna los marcadores por nombre; si los nombres no cuadran usa el orden.
func scoreValues(s scoreDTO) (home, away float64, ok bool) {
	if len(s.Scores) < 2 {
		return 0, 0, false
	}
	values := make([]float64, len(s.Scores))
	for i, ts := range s.Scores {
		v, err := strconv.ParseFloat(strings.TrimSpace(ts.Score), 64)
		if err != nil {
			return 0, 0, false
		}
		values[i] = v
	}
	homeIdx, awayIdx := -1, -1
	for i, ts := range s.Scores {
		switch {
		case strings.EqualFold(ts.Name, s.HomeTeam):
			homeIdx = i
		case strings.EqualFold(ts.Name, s.AwayTeam):
			awayIdx = i
		}
	}
	if homeIdx < 0 || awayIdx < 0 {
		homeIdx, awayIdx = 0, 1
	}
	return values[homeIdx], values[awayIdx], true
}

// mapSignal devuelve ok=false si la señal no trae un porcentaje positivo.
func mapSignal(key string, s signalDTO) (domain.SizingSignal, bool) {
	if s.Pct <= 0 {
		return domain.SizingSignal{}, false
	}
	sig := domain.SizingSignal{Key: s.Key, Pct: s.Pct, At: s.At, Source: s.Source}
	if sig.Key == "" {
		sig.Key = key
	}
	return sig, true
}
