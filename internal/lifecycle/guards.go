package lifecycle

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Book es la vista de una estrategia sobre sus commitments abiertos y sus stops recientes.
// No es seguro para uso concurrente; el engine le da uno propio a cada estrategia.
type Book struct {
	open  map[string]domain.Commitment
	stops map[string]time.Time // clave de cooldown → último cierre CLOSED_STOP
}

// NewBook arma un book con los commitments abiertos y los cerrados recientes.
// De los cerrados, solo los CLOSED_STOP alimentan el guard de cooldown.
func NewBook(open, closed []domain.Commitment) *Book {
	b := &Book{
		open:  make(map[string]domain.Commitment, len(open)),
		stops: make(map[string]time.Time),
	}
	for _, c := range open {
		b.open[c.ID] = c
	}
	for _, c := range closed {
		b.Remove(c)
	}
	return b
}

// Add registra un commitment recién abierto.
func (b *Book) Add(c domain.Commitment) {
	b.open[c.ID] = c
}

// Remove quita un commitment cerrado y recuerda los stops para el cooldown.
func (b *Book) Remove(c domain.Commitment) {
	delete(b.open, c.ID)
	if c.Status != domain.StatusClosedStop || c.ExitTime == nil {
		return
	}
	key := cooldownKey(c.Symbol, c.EventID)
	if prev, ok := b.stops[key]; !ok || c.ExitTime.After(prev) {
		b.stops[key] = *c.ExitTime
	}
}

// Open devuelve la cantidad de commitments abiertos.
func (b *Book) Open() int { return len(b.open) }

// Has indica si la estrategia ya tiene el par (oportunidad, outcome).
func (b *Book) Has(opportunityID, outcomeID string) bool {
	for _, c := range b.open {
		if c.OpportunityID == opportunityID && c.OutcomeID == outcomeID {
			return true
		}
	}
	return false
}

func (b *Book) countClass(a domain.AssetClass) int {
	n := 0
	for _, c := range b.open {
		if c.AssetClass == a {
			n++
		}
	}
	return n
}

func (b *Book) countTag(tag string) int {
	n := 0
	for _, c := range b.open {
		if c.CorrelationTag == tag {
			n++
		}
	}
	return n
}

func cooldownKey(symbol, eventID string) string {
	if symbol != "" {
		return symbol
	}
	return eventID
}

// CheckEntry corre los guards de entrada en orden: cap de concurrencia por
// clase, cap de correlación, cooldown tras un stop y reward:risk mínimo.
// Cualquier violación envuelve domain.ErrGuardRejected.
func (m *Manager) CheckEntry(b *Book, opp domain.Opportunity, now time.Time) error {
	class := m.cfg.Class(opp.AssetClass)

	if class.MaxConcurrent > 0 && b.countClass(opp.AssetClass) >= class.MaxConcurrent {
		return fmt.Errorf("%w: %s concurrency cap %d reached", domain.ErrGuardRejected, opp.AssetClass, class.MaxConcurrent)
	}
	if opp.CorrelationTag != "" && m.cfg.CorrelationCap > 0 && b.countTag(opp.CorrelationTag) >= m.cfg.CorrelationCap {
		return fmt.Errorf("%w: correlation cap %d reached for %q", domain.ErrGuardRejected, m.cfg.CorrelationCap, opp.CorrelationTag)
	}
	if m.cfg.Cooldown > 0 {
		key := cooldownKey(opp.Symbol, opp.EventID)
		if stoppedAt, ok := b.stops[key]; ok && key != "" && now.Sub(stoppedAt) < m.cfg.Cooldown {
			return fmt.Errorf("%w: %s in cooldown until %s", domain.ErrGuardRejected, key,
				stoppedAt.Add(m.cfg.Cooldown).Format(time.RFC3339))
		}
	}
	if class.MinRewardRisk > 0 {
		target, stop := m.exitLevels(opp)
		rr := RewardRisk(opp, target, stop)
		if rr < class.MinRewardRisk {
			return fmt.Errorf("%w: reward:risk %.2f below %.2f", domain.ErrGuardRejected, rr, class.MinRewardRisk)
		}
	}
	return nil
}

// RewardRisk devuelve el ratio reward:risk de una entrada. Para apuestas son
// las cuotas netas (gana stake×(price−1), pierde stake).
func RewardRisk(opp domain.Opportunity, target, stop float64) float64 {
	if opp.AssetClass.IsBet() {
		return opp.Price - 1
	}
	risk := abs(opp.Price - stop)
	if risk == 0 {
		return 0
	}
	return abs(target-opp.Price) / risk
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
