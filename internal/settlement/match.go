// Package settlement concilia los resultados externos con los commitments
// abiertos y decide cómo cierra cada uno.
package settlement

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// MatchResult es el record encontrado para un commitment, ya orientado a sus
// roles home/away.
type MatchResult struct {
	Record   domain.SettlementRecord
	Strength Strength
	ByID     bool
	Swapped  bool
}

// Match busca el record de resultado de c. Orden: event id exacto y después
// el match difuso más fuerte sobre (home, away) en ambas orientaciones.
// Las posiciones de precio matchean por símbolo y usan el último precio final
// completo observado desde la entrada.
func Match(c domain.Commitment, obs []domain.SettlementRecord) (MatchResult, error) {
	if !c.AssetClass.IsBet() {
		return matchSymbol(c, obs)
	}

	if c.EventID != "" {
		var found *domain.SettlementRecord
		for i := range obs {
			if obs[i].EventID != c.EventID {
				continue
			}
			if found == nil || (!found.Completed && obs[i].Completed) {
				found = &obs[i]
			}
		}
		if found != nil {
			return MatchResult{Record: *found, Strength: StrengthExact, ByID: true}, nil
		}
	}

	if c.HomeName == "" || c.AwayName == "" {
		return MatchResult{}, fmt.Errorf("settlement.Match: %s has no event id match and no names: %w", c.ID, domain.ErrDataUnavailable)
	}

	best := StrengthNone
	var candidates []MatchResult
	for _, rec := range obs {
		forward := min(Score(c.HomeName, rec.HomeName), Score(c.AwayName, rec.AwayName))
		swapped := min(Score(c.HomeName, rec.AwayName), Score(c.AwayName, rec.HomeName))

		m := MatchResult{Record: rec, Strength: forward}
		if swapped > forward {
			m = MatchResult{Record: invert(rec), Strength: swapped, Swapped: true}
		}
		switch {
		case m.Strength == StrengthNone || m.Strength < best:
			continue
		case m.Strength > best:
			best = m.Strength
			candidates = candidates[:0]
		}
		candidates = append(candidates, m)
	}

	candidates = mergeAgreeing(candidates)
	switch len(candidates) {
	case 0:
		return MatchResult{}, fmt.Errorf("settlement.Match: %s %s vs %s: %w", c.ID, c.HomeName, c.AwayName, domain.ErrDataUnavailable)
	case 1:
		return candidates[0], nil
	default:
		return MatchResult{}, fmt.Errorf("settlement.Match: %s: %d %s candidates: %w",
			c.ID, len(candidates), best, domain.ErrSettlementAmbiguous)
	}
}

func matchSymbol(c domain.Commitment, obs []domain.SettlementRecord) (MatchResult, error) {
	var found *domain.SettlementRecord
	for i := range obs {
		rec := &obs[i]
		if rec.FinalPrice <= 0 || !strings.EqualFold(rec.Symbol, c.Symbol) {
			continue
		}
		if !rec.Completed || rec.ObservedAt.Before(c.EntryTime) {
			continue
		}
		if found == nil || rec.ObservedAt.After(found.ObservedAt) {
			found = rec
		}
	}
	if found == nil {
		return MatchResult{}, fmt.Errorf("settlement.Match: %s no final price for %s: %w", c.ID, c.Symbol, domain.ErrDataUnavailable)
	}
	return MatchResult{Record: *found, Strength: StrengthExact, ByID: true}, nil
}

// mergeAgreeing junta los candidatos que reportan el mismo resultado: el
// mismo marcador visto por dos fuentes no es ambiguo. Un record completo
// gana sobre uno en curso.
func mergeAgreeing(candidates []MatchResult) []MatchResult {
	out := candidates[:0:0]
	for _, m := range candidates {
		merged := false
		for i := range out {
			if sameOutcome(out[i].Record, m.Record) {
				if !out[i].Record.Completed && m.Record.Completed {
					out[i] = m
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, m)
		}
	}
	return out
}

func sameOutcome(a, b domain.SettlementRecord) bool {
	return a.HomeValue == b.HomeValue && a.AwayValue == b.AwayValue
}

// invert intercambia los roles home/away de un record.
func invert(r domain.SettlementRecord) domain.SettlementRecord {
	r.HomeName, r.AwayName = r.AwayName, r.HomeName
	r.HomeValue, r.AwayValue = r.AwayValue, r.HomeValue
	return r
}
