package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

const commitmentColumns = `
	id, strategy_id, opportunity_id, outcome_id, market_id, event_id,
	home_name, away_name, side, market_type, asset_class, symbol,
	correlation_tag, line, direction, entry_price, target, stop,
	max_hold_secs, stake, ev_pct, status, exit_reason, exit_price,
	gross_pnl, fees, net_pnl, result, entry_time, exit_time,
	highest_price, lowest_price, last_price, trail_armed, trail_floor`

// InsertCommitment inserta un commitment nuevo. Si la clave
// (strategy, opportunity, outcome) ya existe devuelve domain.ErrDuplicateAcceptance.
func (s *SQLiteStorage) InsertCommitment(ctx context.Context, c domain.Commitment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO commitments (`+commitmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StrategyID, c.OpportunityID, c.OutcomeID, c.MarketID, c.EventID,
		c.HomeName, c.AwayName, string(c.Side), c.MarketType.String(), c.AssetClass.String(), c.Symbol,
		c.CorrelationTag, c.Line, string(c.Direction), c.EntryPrice, c.Target, c.Stop,
		int64(c.MaxHold/time.Second), c.Stake, c.EVPct, string(c.Status), c.ExitReason, c.ExitPrice,
		c.GrossPnL, c.Fees, c.NetPnL, string(c.Result), formatTime(c.EntryTime), formatTimePtr(c.ExitTime),
		c.HighestPrice, c.LowestPrice, c.LastPrice, boolInt(c.TrailArmed), c.TrailFloor,
	)
	if err != nil {
		return fmt.Errorf("storage.InsertCommitment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.InsertCommitment: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.InsertCommitment %s: %w", c.Key(), domain.ErrDuplicateAcceptance)
	}
	s.tickChanged(c)
	return nil
}

// UpdateCommitmentTick persiste el estado de mercado de un commitment abierto.
// No escribe si nada cambió desde el último tick guardado.
func (s *SQLiteStorage) UpdateCommitmentTick(ctx context.Context, c domain.Commitment) error {
	if !s.tickChanged(c) {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE commitments
		SET last_price = ?, highest_price = ?, lowest_price = ?, trail_armed = ?, trail_floor = ?
		WHERE id = ? AND status = 'OPEN'`,
		c.LastPrice, c.HighestPrice, c.LowestPrice, boolInt(c.TrailArmed), c.TrailFloor, c.ID,
	)
	if err != nil {
		s.forgetTick(c.ID)
		return fmt.Errorf("storage.UpdateCommitmentTick: %w", err)
	}
	return nil
}

// CloseCommitment persiste el estado terminal y, si el cierre mueve el bankroll,
// aplica el ledger en la misma transacción. El UPDATE solo toca filas abiertas:
// un segundo cierre del mismo commitment devuelve domain.ErrAlreadyClosed sin
// tocar el ledger.
func (s *SQLiteStorage) CloseCommitment(ctx context.Context, c domain.Commitment) (domain.BankrollLedger, error) {
	if !c.Status.Terminal() {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: %s status %s is not terminal", c.ID, c.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE commitments
		SET status = ?, exit_reason = ?, exit_price = ?, gross_pnl = ?, fees = ?, net_pnl = ?,
		    result = ?, exit_time = ?, highest_price = ?, lowest_price = ?, last_price = ?,
		    trail_armed = ?, trail_floor = ?
		WHERE id = ? AND status IN ('OPEN', 'PENDING')`,
		string(c.Status), c.ExitReason, c.ExitPrice, c.GrossPnL, c.Fees, c.NetPnL,
		string(c.Result), formatTimePtr(c.ExitTime), c.HighestPrice, c.LowestPrice, c.LastPrice,
		boolInt(c.TrailArmed), c.TrailFloor, c.ID,
	)
	if err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: rows affected: %w", err)
	}
	if n == 0 {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment %s: %w", c.ID, domain.ErrAlreadyClosed)
	}

	ledger, err := getLedger(ctx, tx, c.StrategyID)
	switch {
	case errors.Is(err, domain.ErrNotFound) && !c.Status.AffectsBankroll():
		// un void no necesita ledger
	case err != nil:
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: %w", err)
	}
	if c.Status.AffectsBankroll() {
		at := time.Now().UTC()
		if c.ExitTime != nil {
			at = *c.ExitTime
		}
		if err := ledger.Apply(c, at); err != nil {
			return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: %w", err)
		}
		if err := saveLedger(ctx, tx, ledger); err != nil {
			return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("storage.CloseCommitment: commit: %w", err)
	}
	s.forgetTick(c.ID)
	return ledger, nil
}

// GetCommitment devuelve un commitment por id o domain.ErrNotFound.
func (s *SQLiteStorage) GetCommitment(ctx context.Context, id string) (domain.Commitment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id = ?`, id)
	c, err := scanCommitment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Commitment{}, fmt.Errorf("storage.GetCommitment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Commitment{}, fmt.Errorf("storage.GetCommitment: %w", err)
	}
	return c, nil
}

// OpenCommitments devuelve los commitments abiertos de una estrategia,
// o de todas si strategyID está vacío. Orden: entrada más antigua primero.
func (s *SQLiteStorage) OpenCommitments(ctx context.Context, strategyID string) ([]domain.Commitment, error) {
	if strategyID == "" {
		return s.queryCommitments(ctx, `
			SELECT `+commitmentColumns+` FROM commitments
			WHERE status = 'OPEN' ORDER BY entry_time ASC, id ASC`)
	}
	return s.queryCommitments(ctx, `
		SELECT `+commitmentColumns+` FROM commitments
		WHERE status = 'OPEN' AND strategy_id = ? ORDER BY entry_time ASC, id ASC`, strategyID)
}

// RecentStops devuelve los cierres por stop con exit_time >= since (para cooldowns).
func (s *SQLiteStorage) RecentStops(ctx context.Context, since time.Time) ([]domain.Commitment, error) {
	return s.queryCommitments(ctx, `
		SELECT `+commitmentColumns+` FROM commitments
		WHERE status = ? AND exit_time >= ? ORDER BY exit_time ASC`,
		string(domain.StatusClosedStop), formatTime(since))
}

// ListCommitments devuelve una página de commitments (más recientes primero)
// y el total que cumple el filtro.
func (s *SQLiteStorage) ListCommitments(ctx context.Context, f ports.CommitmentFilter) ([]domain.Commitment, int, error) {
	var (
		where []string
		args  []any
	)
	if f.StrategyID != "" {
		where = append(where, "strategy_id = ?")
		args = append(args, f.StrategyID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commitments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage.ListCommitments: count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	out, err := s.queryCommitments(ctx, `
		SELECT `+commitmentColumns+` FROM commitments`+clause+`
		ORDER BY entry_time DESC, id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage.ListCommitments: %w", err)
	}
	return out, total, nil
}

// queryCommitments escanea filas en un slice de Commitment.
func (s *SQLiteStorage) queryCommitments(ctx context.Context, query string, args ...any) ([]domain.Commitment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryCommitments: %w", err)
	}
	defer rows.Close()

	var out []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryCommitments: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommitment(r rowScanner) (domain.Commitment, error) {
	var (
		c                                    domain.Commitment
		side, marketType, assetClass         string
		direction, status, result, entryTime string
		exitTime                             sql.NullString
		maxHoldSecs                          int64
		armed                                int
	)
	if err := r.Scan(
		&c.ID, &c.StrategyID, &c.OpportunityID, &c.OutcomeID, &c.MarketID, &c.EventID,
		&c.HomeName, &c.AwayName, &side, &marketType, &assetClass, &c.Symbol,
		&c.CorrelationTag, &c.Line, &direction, &c.EntryPrice, &c.Target, &c.Stop,
		&maxHoldSecs, &c.Stake, &c.EVPct, &status, &c.ExitReason, &c.ExitPrice,
		&c.GrossPnL, &c.Fees, &c.NetPnL, &result, &entryTime, &exitTime,
		&c.HighestPrice, &c.LowestPrice, &c.LastPrice, &armed, &c.TrailFloor,
	); err != nil {
		return domain.Commitment{}, err
	}

	c.Side = domain.Side(side)
	c.MarketType, _ = domain.ParseMarketType(marketType)
	c.AssetClass, _ = domain.ParseAssetClass(assetClass)
	c.Direction = domain.Direction(direction)
	c.Status = domain.CommitmentStatus(status)
	c.Result = domain.Result(result)
	c.MaxHold = time.Duration(maxHoldSecs) * time.Second
	c.EntryTime = parseTime(entryTime)
	c.ExitTime = parseTimePtr(exitTime)
	c.TrailArmed = armed == 1
	return c, nil
}
