package settlement

import (
	"errors"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// DefaultGrace es cuánto puede esperar un commitment datos de resultado antes de anularse.
const DefaultGrace = 48 * time.Hour

// Action es lo que el engine debe hacer con un commitment tras una pasada de settlement.
type Action int

const (
	ActionNone Action = iota // ya terminal
	ActionPending
	ActionSettle
	ActionVoid
)

func (a Action) String() string {
	switch a {
	case ActionPending:
		return "pending"
	case ActionSettle:
		return "settle"
	case ActionVoid:
		return "void"
	default:
		return "none"
	}
}

// Decision es el veredicto de settlement de un commitment.
type Decision struct {
	Action    Action
	Result    domain.Result
	ExitPrice float64
	Match     MatchResult
	Reason    string
	Err       error // por qué el commitment sigue pendiente o se anula
}

// Deadline es cuándo se anula un commitment sin datos de resultado: entrada
// más max hold (posiciones de precio) más grace.
func Deadline(c domain.Commitment, grace time.Duration) time.Time {
	return c.EntryTime.Add(c.MaxHold).Add(grace)
}

// Decide hace el match de c contra obs y devuelve la acción a tomar. Los
// commitments terminales siempre reciben ActionNone: repetir la pasada no hace nada.
func Decide(c domain.Commitment, obs []domain.SettlementRecord, now time.Time, grace time.Duration) Decision {
	if c.Status.Terminal() {
		return Decision{Action: ActionNone, Reason: "already " + string(c.Status)}
	}

	m, err := Match(c, obs)
	if err == nil && c.AssetClass.IsBet() && !m.Record.Completed {
		err = errIncomplete
	}
	if err == nil {
		if !c.AssetClass.IsBet() {
			return Decision{Action: ActionSettle, ExitPrice: m.Record.FinalPrice, Match: m, Reason: "final price"}
		}
		res, derr := Determine(c, m.Record)
		if derr == nil {
			return Decision{Action: ActionSettle, Result: res, Match: m, Reason: "matched " + m.Strength.String()}
		}
		err = derr
	}

	if now.Before(Deadline(c, grace)) {
		return Decision{Action: ActionPending, Reason: "awaiting outcome data", Err: err}
	}
	reason := "no settlement data within grace window"
	if errors.Is(err, domain.ErrSettlementAmbiguous) {
		reason = "ambiguous settlement data within grace window"
	}
	return Decision{Action: ActionVoid, Reason: reason, Err: err}
}

var errIncomplete = errors.New("outcome not completed")
