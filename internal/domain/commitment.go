package domain

import (
	"fmt"
	"strings"
	"time"
)

// CommitmentStatus es el estado del ciclo de vida de un commitment en papel.
type CommitmentStatus string

const (
	StatusPending       CommitmentStatus = "PENDING"
	StatusOpen          CommitmentStatus = "OPEN"
	StatusClosedTarget  CommitmentStatus = "CLOSED_TARGET"
	StatusClosedStop    CommitmentStatus = "CLOSED_STOP"
	StatusClosedTrail   CommitmentStatus = "CLOSED_TRAIL"
	StatusClosedTimeout CommitmentStatus = "CLOSED_TIMEOUT"
	StatusClosedManual  CommitmentStatus = "CLOSED_MANUAL"
	StatusClosedSettled CommitmentStatus = "CLOSED_SETTLED"
	StatusVoided        CommitmentStatus = "VOIDED"
)

// Terminal indica si ya no hay transiciones posibles.
func (s CommitmentStatus) Terminal() bool {
	switch s {
	case StatusPending, StatusOpen:
		return false
	default:
		return true
	}
}

// ParseCommitmentStatus acepta un status conocido en cualquier capitalización.
func ParseCommitmentStatus(s string) (CommitmentStatus, error) {
	st := CommitmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusOpen, StatusClosedTarget, StatusClosedStop, StatusClosedTrail,
		StatusClosedTimeout, StatusClosedManual, StatusClosedSettled, StatusVoided:
		return st, nil
	}
	return "", fmt.Errorf("unknown commitment status %q", s)
}

// AffectsBankroll indica si cerrar en este status mueve el ledger.
func (s CommitmentStatus) AffectsBankroll() bool {
	return s.Terminal() && s != StatusVoided
}

// Result es el resultado financiero de un commitment cerrado.
type Result string

const (
	ResultNone Result = ""
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
	ResultPush Result = "PUSH"
	ResultVoid Result = "VOID"
)

// Commitment es una apuesta o posición hipotética de una estrategia.
// Nunca se borran: los terminales se conservan para analytics.
type Commitment struct {
	ID            string
	StrategyID    string
	OpportunityID string
	OutcomeID     string
	MarketID      string
	EventID       string
	HomeName      string
	AwayName      string
	Side          Side

	MarketType     MarketType
	AssetClass     AssetClass
	Symbol         string
	CorrelationTag string
	Line           float64

	Direction  Direction
	EntryPrice float64
	Target     float64
	Stop       float64
	MaxHold    time.Duration
	Stake      float64
	EVPct      float64

	Status     CommitmentStatus
	ExitReason string
	ExitPrice  float64
	GrossPnL   float64
	Fees       float64
	NetPnL     float64
	Result     Result

	EntryTime time.Time
	ExitTime  *time.Time

	HighestPrice float64
	LowestPrice  float64
	LastPrice    float64
	TrailArmed   bool
	TrailFloor   float64 // long: piso bajo el precio; short: techo sobre el precio
}

// Key es la clave anti-duplicados: un commitment por (estrategia, oportunidad, outcome).
func (c Commitment) Key() string {
	return c.StrategyID + "|" + c.OpportunityID + "|" + c.OutcomeID
}

// Age devuelve cuánto tiempo lleva (o llevó) abierto el commitment en now.
func (c Commitment) Age(now time.Time) time.Duration {
	if c.ExitTime != nil {
		return c.ExitTime.Sub(c.EntryTime)
	}
	return now.Sub(c.EntryTime)
}

// PnLPct devuelve direction_sign × (price − entry)/entry.
func (c Commitment) PnLPct(price float64) float64 {
	if c.EntryPrice <= 0 {
		return 0
	}
	return c.Direction.Sign() * (price - c.EntryPrice) / c.EntryPrice
}

// UnrealizedPnL es el P&L bruto mark-to-market a price.
func (c Commitment) UnrealizedPnL(price float64) float64 {
	return c.Stake * c.PnLPct(price)
}

// ResultFromPnL clasifica un P&L neto como win, loss o push.
func ResultFromPnL(net float64) Result {
	switch {
	case net > 0:
		return ResultWin
	case net < 0:
		return ResultLoss
	default:
		return ResultPush
	}
}
