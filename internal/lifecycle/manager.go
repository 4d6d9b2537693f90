// Package lifecycle abre commitments, pasa las posiciones de precio por sus
// reglas de salida en cada tick y las cierra con P&L neto de comisiones.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Manager aplica las reglas de lifecycle. No guarda estado de commitments:
// quien llama los pasa y persiste lo que sale.
type Manager struct {
	cfg Config
}

// NewManager crea un Manager con las reglas dadas.
func NewManager(cfg Config) *Manager {
	if cfg.Classes == nil {
		cfg.Classes = DefaultConfig().Classes
	}
	return &Manager{cfg: cfg}
}

// Config devuelve las reglas con las que se creó el manager.
func (m *Manager) Config() Config { return m.cfg }

// Open crea el commitment de una oportunidad aceptada. En papel la entrada se
// llena al instante, así que pasa de PENDING directo a OPEN.
func (m *Manager) Open(strategyID string, opp domain.Opportunity, edge domain.Edge, stake float64, now time.Time) domain.Commitment {
	class := m.cfg.Class(opp.AssetClass)
	dir := opp.Direction
	if dir == "" || opp.AssetClass.IsBet() {
		dir = domain.Long
	}
	price := opp.Price
	if edge.BestPrice > 0 {
		price = edge.BestPrice
	}
	opp.Price = price

	c := domain.Commitment{
		ID:             uuid.New().String(),
		StrategyID:     strategyID,
		OpportunityID:  opp.ID,
		OutcomeID:      opp.OutcomeID,
		MarketID:       opp.MarketID,
		EventID:        opp.EventID,
		HomeName:       opp.HomeName,
		AwayName:       opp.AwayName,
		Side:           opp.Side,
		MarketType:     opp.MarketType,
		AssetClass:     opp.AssetClass,
		Symbol:         opp.Symbol,
		CorrelationTag: opp.CorrelationTag,
		Line:           opp.Line,
		Direction:      dir,
		EntryPrice:     price,
		Stake:          stake,
		EVPct:          edge.EVPct,
		Status:         domain.StatusPending,
		EntryTime:      now,
		HighestPrice:   price,
		LowestPrice:    price,
		LastPrice:      price,
		MaxHold:        opp.MaxHold, // apuestas: tiempo hasta que termina el evento, corre el deadline de settlement
	}
	if !opp.AssetClass.IsBet() {
		opp.Direction = dir
		c.Target, c.Stop = m.exitLevels(opp)
		c.MaxHold = opp.MaxHold
		if c.MaxHold == 0 {
			c.MaxHold = class.MaxHold
		}
	}
	c.Status = domain.StatusOpen
	return c
}

// exitLevels resuelve los precios de target y stop, prefiriendo los niveles
// explícitos de la oportunidad sobre los porcentajes de la clase.
func (m *Manager) exitLevels(opp domain.Opportunity) (target, stop float64) {
	class := m.cfg.Class(opp.AssetClass)
	sign := opp.Direction.Sign()
	target, stop = opp.Target, opp.Stop
	if target <= 0 && class.TargetPct > 0 {
		target = opp.Price * (1 + sign*class.TargetPct)
	}
	if stop <= 0 && class.StopPct > 0 {
		stop = opp.Price * (1 - sign*class.StopPct)
	}
	return target, stop
}

// OnTick valora una posición de precio a price y la cierra si salta una regla
// de salida. Orden: trailing stop, target, stop, timeout.
// Las apuestas y los commitments terminales no se tocan.
func (m *Manager) OnTick(c *domain.Commitment, price float64, now time.Time) bool {
	if c.Status != domain.StatusOpen || c.AssetClass.IsBet() || price <= 0 {
		return false
	}
	class := m.cfg.Class(c.AssetClass)
	p := decimal.NewFromFloat(price)
	entry := decimal.NewFromFloat(c.EntryPrice)
	long := c.Direction != domain.Short

	c.LastPrice = price
	if price > c.HighestPrice {
		c.HighestPrice = price
	}
	if c.LowestPrice == 0 || price < c.LowestPrice {
		c.LowestPrice = price
	}

	targetPct, stopPct := m.levelPcts(c)

	// trailing stop: se arma con la excursión favorable y después solo se
	// mueve a favor.
	if class.TrailFraction > 0 && stopPct.IsPositive() && targetPct.IsPositive() {
		extreme := decimal.NewFromFloat(c.HighestPrice)
		if !long {
			extreme = decimal.NewFromFloat(c.LowestPrice)
		}
		gain := extreme.Sub(entry).Div(entry)
		if !long {
			gain = gain.Neg()
		}
		activation := decimal.NewFromFloat(class.ActivationFraction).Mul(targetPct)
		if !c.TrailArmed && gain.GreaterThanOrEqual(activation) {
			c.TrailArmed = true
		}
		if c.TrailArmed {
			dist := decimal.NewFromFloat(class.TrailFraction).Mul(stopPct)
			var level decimal.Decimal
			if long {
				level = extreme.Mul(decimal.NewFromInt(1).Sub(dist))
			} else {
				level = extreme.Mul(decimal.NewFromInt(1).Add(dist))
			}
			c.TrailFloor = level.Round(8).InexactFloat64()
			if (long && p.LessThanOrEqual(level)) || (!long && p.GreaterThanOrEqual(level)) {
				m.closeAtPrice(c, domain.StatusClosedTrail, "trailing stop", price, now)
				return true
			}
		}
	}

	if c.Target > 0 {
		t := decimal.NewFromFloat(c.Target)
		if (long && p.GreaterThanOrEqual(t)) || (!long && p.LessThanOrEqual(t)) {
			m.closeAtPrice(c, domain.StatusClosedTarget, "target reached", price, now)
			return true
		}
	}
	if c.Stop > 0 {
		s := decimal.NewFromFloat(c.Stop)
		if (long && p.LessThanOrEqual(s)) || (!long && p.GreaterThanOrEqual(s)) {
			m.closeAtPrice(c, domain.StatusClosedStop, "stop loss", price, now)
			return true
		}
	}
	if c.MaxHold > 0 && now.Sub(c.EntryTime) > c.MaxHold {
		m.closeAtPrice(c, domain.StatusClosedTimeout, fmt.Sprintf("max hold %s exceeded", c.MaxHold), price, now)
		return true
	}
	return false
}

// levelPcts devuelve la distancia de target y stop a la entrada, como fracciones.
func (m *Manager) levelPcts(c *domain.Commitment) (target, stop decimal.Decimal) {
	entry := decimal.NewFromFloat(c.EntryPrice)
	if entry.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	if c.Target > 0 {
		target = decimal.NewFromFloat(c.Target).Sub(entry).Abs().Div(entry)
	}
	if c.Stop > 0 {
		stop = entry.Sub(decimal.NewFromFloat(c.Stop)).Abs().Div(entry)
	}
	return target, stop
}

// CloseManual cierra un commitment abierto a price por pedido del operador.
// Las apuestas cierran al precio dado como cash-out sobre su cuota de entrada.
func (m *Manager) CloseManual(c *domain.Commitment, price float64, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("lifecycle.CloseManual: %s: %w", c.ID, domain.ErrAlreadyClosed)
	}
	if price <= 0 {
		price = c.LastPrice
	}
	if price <= 0 {
		return fmt.Errorf("lifecycle.CloseManual: %s: no price: %w", c.ID, domain.ErrDataUnavailable)
	}
	m.closeAtPrice(c, domain.StatusClosedManual, "manual close", price, now)
	return nil
}

// Settle cierra un commitment con datos de resultado. Las apuestas usan
// result; las posiciones de precio cierran a exitPrice y su result sale del P&L neto.
func (m *Manager) Settle(c *domain.Commitment, result domain.Result, exitPrice float64, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("lifecycle.Settle: %s: %w", c.ID, domain.ErrAlreadyClosed)
	}
	if !c.AssetClass.IsBet() {
		if exitPrice <= 0 {
			return fmt.Errorf("lifecycle.Settle: %s: final price %.4f: %w", c.ID, exitPrice, domain.ErrDataUnavailable)
		}
		m.closeAtPrice(c, domain.StatusClosedSettled, "settled at final price", exitPrice, now)
		return nil
	}
	if result == domain.ResultVoid {
		return m.Void(c, "settled void", now)
	}

	stake := decimal.NewFromFloat(c.Stake)
	var gross decimal.Decimal
	switch result {
	case domain.ResultWin:
		gross = stake.Mul(decimal.NewFromFloat(c.EntryPrice).Sub(decimal.NewFromInt(1)))
	case domain.ResultLoss:
		gross = stake.Neg()
	case domain.ResultPush:
		gross = decimal.Zero
	default:
		return fmt.Errorf("lifecycle.Settle: %s: unknown result %q", c.ID, result)
	}
	payout := stake.Add(gross)
	fees := m.cfg.Class(c.AssetClass).Fees.RoundTrip(c.Stake, payout.InexactFloat64())
	net := gross.Sub(fees)

	c.Status = domain.StatusClosedSettled
	c.ExitReason = "settled " + string(result)
	c.ExitPrice = c.EntryPrice
	c.GrossPnL = gross.Round(2).InexactFloat64()
	c.Fees = fees.InexactFloat64()
	c.NetPnL = net.Round(2).InexactFloat64()
	c.Result = result
	c.ExitTime = exitTime(c.EntryTime, now)
	return nil
}

// Void cierra un commitment sin efecto en el bankroll.
func (m *Manager) Void(c *domain.Commitment, reason string, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("lifecycle.Void: %s: %w", c.ID, domain.ErrAlreadyClosed)
	}
	c.Status = domain.StatusVoided
	c.ExitReason = reason
	c.GrossPnL, c.Fees, c.NetPnL = 0, 0, 0
	c.Result = domain.ResultVoid
	c.ExitTime = exitTime(c.EntryTime, now)
	return nil
}

// closeAtPrice calcula
//
//	pnl_pct = sign × (exit − entry)/entry
//	gross   = stake × pnl_pct
//	net     = gross − round-trip fees
func (m *Manager) closeAtPrice(c *domain.Commitment, status domain.CommitmentStatus, reason string, price float64, now time.Time) {
	entry := decimal.NewFromFloat(c.EntryPrice)
	exit := decimal.NewFromFloat(price)
	stake := decimal.NewFromFloat(c.Stake)

	pnlPct := exit.Sub(entry).Div(entry)
	if c.Direction == domain.Short {
		pnlPct = pnlPct.Neg()
	}
	gross := stake.Mul(pnlPct)
	fees := m.cfg.Class(c.AssetClass).Fees.RoundTrip(c.Stake, stake.Add(gross).InexactFloat64())
	net := gross.Sub(fees).Round(2)

	c.Status = status
	c.ExitReason = reason
	c.ExitPrice = price
	c.LastPrice = price
	c.GrossPnL = gross.Round(2).InexactFloat64()
	c.Fees = fees.InexactFloat64()
	c.NetPnL = net.InexactFloat64()
	c.Result = domain.ResultFromPnL(c.NetPnL)
	c.ExitTime = exitTime(c.EntryTime, now)
}

// exitTime mantiene la salida estrictamente después de la entrada si los relojes coinciden.
func exitTime(entry, now time.Time) *time.Time {
	if !now.After(entry) {
		now = entry.Add(time.Nanosecond)
	}
	return &now
}
