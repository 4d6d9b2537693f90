package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// filterRow es la forma persistida de domain.FilterSpec: enums por nombre.
type filterRow struct {
	MinEV        float64  `json:"min_ev,omitempty"`
	MaxEV        float64  `json:"max_ev,omitempty"`
	MinFairProb  float64  `json:"min_fair_prob,omitempty"`
	MaxFairProb  float64  `json:"max_fair_prob,omitempty"`
	MinPrice     float64  `json:"min_price,omitempty"`
	MaxPrice     float64  `json:"max_price,omitempty"`
	MinSources   int      `json:"min_sources,omitempty"`
	MarketTypes  []string `json:"market_types,omitempty"`
	AssetClasses []string `json:"asset_classes,omitempty"`
}

func encodeFilter(f domain.FilterSpec) (string, error) {
	r := filterRow{
		MinEV: f.MinEV, MaxEV: f.MaxEV,
		MinFairProb: f.MinFairProb, MaxFairProb: f.MaxFairProb,
		MinPrice: f.MinPrice, MaxPrice: f.MaxPrice,
		MinSources: f.MinSources,
	}
	for _, m := range f.MarketTypes {
		r.MarketTypes = append(r.MarketTypes, m.String())
	}
	for _, a := range f.AssetClasses {
		r.AssetClasses = append(r.AssetClasses, a.String())
	}
	b, err := json.Marshal(r)
	return string(b), err
}

func decodeFilter(s string) (domain.FilterSpec, error) {
	var r filterRow
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return domain.FilterSpec{}, err
	}
	f := domain.FilterSpec{
		MinEV: r.MinEV, MaxEV: r.MaxEV,
		MinFairProb: r.MinFairProb, MaxFairProb: r.MaxFairProb,
		MinPrice: r.MinPrice, MaxPrice: r.MaxPrice,
		MinSources: r.MinSources,
	}
	for _, name := range r.MarketTypes {
		m, err := domain.ParseMarketType(name)
		if err != nil {
			return domain.FilterSpec{}, err
		}
		f.MarketTypes = append(f.MarketTypes, m)
	}
	for _, name := range r.AssetClasses {
		a, err := domain.ParseAssetClass(name)
		if err != nil {
			return domain.FilterSpec{}, err
		}
		f.AssetClasses = append(f.AssetClasses, a)
	}
	return f, nil
}

// SeedStrategies registra las estrategias del config y crea su ledger inicial.
// Filtro, sizing y nombre se actualizan desde el config en cada arranque;
// estado, bankroll inicial y ledger existentes no se tocan.
func (s *SQLiteStorage) SeedStrategies(ctx context.Context, strategies []domain.Strategy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SeedStrategies: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, st := range strategies {
		filter, err := encodeFilter(st.Filter)
		if err != nil {
			return fmt.Errorf("storage.SeedStrategies: encode filter %s: %w", st.ID, err)
		}
		sizing, err := json.Marshal(st.Sizing)
		if err != nil {
			return fmt.Errorf("storage.SeedStrategies: encode sizing %s: %w", st.ID, err)
		}
		created := st.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO strategies (id, name, filter_json, sizing_json, initial_bankroll, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name        = excluded.name,
				filter_json = excluded.filter_json,
				sizing_json = excluded.sizing_json`,
			st.ID, st.Name, filter, string(sizing), st.InitialBankroll,
			string(domain.StrategyActive), formatTime(created),
		); err != nil {
			return fmt.Errorf("storage.SeedStrategies: upsert %s: %w", st.ID, err)
		}

		l := domain.NewLedger(st.ID, st.InitialBankroll)
		l.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO ledgers (strategy_id, balance, initial_balance, peak, trough, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.StrategyID, l.Balance, l.InitialBalance, l.Peak, l.Trough, formatTime(l.UpdatedAt),
		); err != nil {
			return fmt.Errorf("storage.SeedStrategies: ledger %s: %w", st.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SeedStrategies: commit: %w", err)
	}
	return nil
}

// SaveStrategy persiste el estado de una estrategia (eliminación, reset).
func (s *SQLiteStorage) SaveStrategy(ctx context.Context, st domain.Strategy) error {
	filter, err := encodeFilter(st.Filter)
	if err != nil {
		return fmt.Errorf("storage.SaveStrategy: encode filter: %w", err)
	}
	sizing, err := json.Marshal(st.Sizing)
	if err != nil {
		return fmt.Errorf("storage.SaveStrategy: encode sizing: %w", err)
	}
	created := st.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, name, filter_json, sizing_json, initial_bankroll, status,
		                        elimination_reason, eliminated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name               = excluded.name,
			filter_json        = excluded.filter_json,
			sizing_json        = excluded.sizing_json,
			initial_bankroll   = excluded.initial_bankroll,
			status             = excluded.status,
			elimination_reason = excluded.elimination_reason,
			eliminated_at      = excluded.eliminated_at`,
		st.ID, st.Name, filter, string(sizing), st.InitialBankroll, string(st.Status),
		st.EliminationReason, formatTimePtr(st.EliminatedAt), formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveStrategy %s: %w", st.ID, err)
	}
	return nil
}

// ListStrategies devuelve las estrategias en orden de alta.
func (s *SQLiteStorage) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, filter_json, sizing_json, initial_bankroll, status,
		       elimination_reason, eliminated_at, created_at
		FROM strategies ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListStrategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		var (
			st                     domain.Strategy
			filter, sizing, status string
			createdAt              string
			eliminatedAt           sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Name, &filter, &sizing, &st.InitialBankroll, &status,
			&st.EliminationReason, &eliminatedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.ListStrategies: scan: %w", err)
		}
		if st.Filter, err = decodeFilter(filter); err != nil {
			return nil, fmt.Errorf("storage.ListStrategies: decode filter %s: %w", st.ID, err)
		}
		if err := json.Unmarshal([]byte(sizing), &st.Sizing); err != nil {
			return nil, fmt.Errorf("storage.ListStrategies: decode sizing %s: %w", st.ID, err)
		}
		st.Status = domain.StrategyStatus(status)
		st.EliminatedAt = parseTimePtr(eliminatedAt)
		st.CreatedAt = parseTime(createdAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

const ledgerColumns = `
	strategy_id, balance, initial_balance, peak, trough, max_drawdown_pct,
	wins, losses, pushes, settled, total_wagered, total_pnl,
	current_streak, best_streak, worst_streak, avg_odds, avg_ev, avg_stake,
	avg_win, avg_loss, updated_at`

// GetLedger devuelve el ledger de una estrategia o domain.ErrNotFound.
func (s *SQLiteStorage) GetLedger(ctx context.Context, strategyID string) (domain.BankrollLedger, error) {
	l, err := getLedger(ctx, s.db, strategyID)
	if err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("storage.GetLedger: %w", err)
	}
	return l, nil
}

// ListLedgers devuelve todos los ledgers, mayor balance primero.
func (s *SQLiteStorage) ListLedgers(ctx context.Context) ([]domain.BankrollLedger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledgers ORDER BY balance DESC, strategy_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListLedgers: %w", err)
	}
	defer rows.Close()

	var out []domain.BankrollLedger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListLedgers: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ResetLedger reinicia el ledger de una estrategia al bankroll inicial dado.
// El histórico de commitments se conserva.
func (s *SQLiteStorage) ResetLedger(ctx context.Context, strategyID string, initial float64) error {
	l := domain.NewLedger(strategyID, initial)
	l.UpdatedAt = time.Now().UTC()
	if err := saveLedger(ctx, s.db, l); err != nil {
		return fmt.Errorf("storage.ResetLedger: %w", err)
	}
	return nil
}

func getLedger(ctx context.Context, q querier, strategyID string) (domain.BankrollLedger, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE strategy_id = ?`, strategyID)
	l, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BankrollLedger{}, fmt.Errorf("ledger %s: %w", strategyID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BankrollLedger{}, fmt.Errorf("ledger %s: %w", strategyID, err)
	}
	return l, nil
}

func saveLedger(ctx context.Context, q querier, l domain.BankrollLedger) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledgers (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET
			balance          = excluded.balance,
			initial_balance  = excluded.initial_balance,
			peak             = excluded.peak,
			trough           = excluded.trough,
			max_drawdown_pct = excluded.max_drawdown_pct,
			wins             = excluded.wins,
			losses           = excluded.losses,
			pushes           = excluded.pushes,
			settled          = excluded.settled,
			total_wagered    = excluded.total_wagered,
			total_pnl        = excluded.total_pnl,
			current_streak   = excluded.current_streak,
			best_streak      = excluded.best_streak,
			worst_streak     = excluded.worst_streak,
			avg_odds         = excluded.avg_odds,
			avg_ev           = excluded.avg_ev,
			avg_stake        = excluded.avg_stake,
			avg_win          = excluded.avg_win,
			avg_loss         = excluded.avg_loss,
			updated_at       = excluded.updated_at`,
		l.StrategyID, l.Balance, l.InitialBalance, l.Peak, l.Trough, l.MaxDrawdownPct,
		l.Wins, l.Losses, l.Pushes, l.Settled, l.TotalWagered, l.TotalPnL,
		l.CurrentStreak, l.BestStreak, l.WorstStreak, l.AvgOdds, l.AvgEV, l.AvgStake,
		l.AvgWin, l.AvgLoss, formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", l.StrategyID, err)
	}
	return nil
}

func scanLedger(r rowScanner) (domain.BankrollLedger, error) {
	var (
		l         domain.BankrollLedger
		updatedAt sql.NullString
	)
	err := r.Scan(
		&l.StrategyID, &l.Balance, &l.InitialBalance, &l.Peak, &l.Trough, &l.MaxDrawdownPct,
		&l.Wins, &l.Losses, &l.Pushes, &l.Settled, &l.TotalWagered, &l.TotalPnL,
		&l.CurrentStreak, &l.BestStreak, &l.WorstStreak, &l.AvgOdds, &l.AvgEV, &l.AvgStake,
		&l.AvgWin, &l.AvgLoss, &updatedAt,
	)
	if err != nil {
		return domain.BankrollLedger{}, err
	}
	if t := parseTimePtr(updatedAt); t != nil {
		l.UpdatedAt = *t
	}
	return l, nil
}

// UpsertSnapshot guarda el punto de la curva de equity del día. Repetir el
// snapshot del mismo día lo sobreescribe.
func (s *SQLiteStorage) UpsertSnapshot(ctx context.Context, snap domain.BankrollSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, strategy_id, date, balance, total_pnl, roi_pct, win_rate,
		                       max_drawdown_pct, open_commitments, settled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id, date) DO UPDATE SET
			balance          = excluded.balance,
			total_pnl        = excluded.total_pnl,
			roi_pct          = excluded.roi_pct,
			win_rate         = excluded.win_rate,
			max_drawdown_pct = excluded.max_drawdown_pct,
			open_commitments = excluded.open_commitments,
			settled          = excluded.settled`,
		snap.ID, snap.StrategyID, snap.Date.UTC().Format(dateLayout), snap.Balance, snap.TotalPnL,
		snap.ROIPct, snap.WinRate, snap.MaxDrawdownPct, snap.OpenCommitments, snap.Settled,
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertSnapshot: %w", err)
	}
	return nil
}

// ListSnapshots devuelve la curva de equity de una estrategia en orden cronológico.
func (s *SQLiteStorage) ListSnapshots(ctx context.Context, strategyID string) ([]domain.BankrollSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy_id, date, balance, total_pnl, roi_pct, win_rate,
		       max_drawdown_pct, open_commitments, settled
		FROM snapshots WHERE strategy_id = ? ORDER BY date ASC`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSnapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.BankrollSnapshot
	for rows.Next() {
		var (
			snap    domain.BankrollSnapshot
			dateStr string
		)
		if err := rows.Scan(&snap.ID, &snap.StrategyID, &dateStr, &snap.Balance, &snap.TotalPnL,
			&snap.ROIPct, &snap.WinRate, &snap.MaxDrawdownPct, &snap.OpenCommitments, &snap.Settled); err != nil {
			return nil, fmt.Errorf("storage.ListSnapshots: scan: %w", err)
		}
		if len(dateStr) > 10 {
			dateStr = dateStr[:10]
		}
		snap.Date, _ = time.Parse(dateLayout, dateStr)
		out = append(out, snap)
	}
	return out, rows.Err()
}
