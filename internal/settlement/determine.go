package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Determine calcula el resultado de una apuesta con un record ya orientado a
// los roles home/away del commitment. Los valores se comparan como decimales
// para que las líneas enteras den push exacto.
func Determine(c domain.Commitment, rec domain.SettlementRecord) (domain.Result, error) {
	home := decimal.NewFromFloat(rec.HomeValue)
	away := decimal.NewFromFloat(rec.AwayValue)
	line := decimal.NewFromFloat(c.Line)

	switch c.MarketType {
	case domain.MarketMoneyline:
		picked, opp, err := pick(c, home, away)
		if err != nil {
			return domain.ResultNone, err
		}
		return compare(picked, opp), nil

	case domain.MarketSpread:
		picked, opp, err := pick(c, home, away)
		if err != nil {
			return domain.ResultNone, err
		}
		return compare(picked.Add(line), opp), nil

	case domain.MarketTotal:
		total := home.Add(away)
		switch c.Side {
		case domain.SideOver:
			return compare(total, line), nil
		case domain.SideUnder:
			return compare(line, total), nil
		default:
			return domain.ResultNone, fmt.Errorf("settlement.Determine: %s: side %q on total: %w", c.ID, c.Side, domain.ErrInvalidOpportunity)
		}

	default:
		return domain.ResultNone, fmt.Errorf("settlement.Determine: %s: market type %d: %w", c.ID, c.MarketType, domain.ErrInvalidOpportunity)
	}
}

// pick devuelve el valor del lado elegido y el del rival.
func pick(c domain.Commitment, home, away decimal.Decimal) (picked, opp decimal.Decimal, err error) {
	switch c.Side {
	case domain.SideHome, domain.SideYes:
		return home, away, nil
	case domain.SideAway, domain.SideNo:
		return away, home, nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("settlement.Determine: %s: side %q on %s: %w",
			c.ID, c.Side, c.MarketType, domain.ErrInvalidOpportunity)
	}
}

func compare(mine, theirs decimal.Decimal) domain.Result {
	switch mine.Cmp(theirs) {
	case 1:
		return domain.ResultWin
	case -1:
		return domain.ResultLoss
	default:
		return domain.ResultPush
	}
}
