package storage

// sqlite.go: persistencia del motor de paper trading.
//
// Estrategia:
//   - `strategies`: una fila por estrategia. Filtro y sizing en JSON; el config
//     es la fuente de verdad de ambos, el estado (activa/eliminada) vive aquí.
//   - `commitments`: nunca se borran. UNIQUE(strategy_id, opportunity_id, outcome_id)
//     es la última línea de defensa contra aceptaciones duplicadas.
//   - `ledgers`: una fila por estrategia, actualizada en la misma transacción
//     que el cierre que la mueve.
//   - `snapshots`: curva de equity, una fila por (estrategia, día).
//   - Cache en memoria de ticks: evita writes si el estado de mercado de un
//     commitment abierto no cambió desde el último tick persistido.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polybet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    filter_json        TEXT NOT NULL DEFAULT '{}',
    sizing_json        TEXT NOT NULL DEFAULT '{}',
    initial_bankroll   REAL NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'active',
    elimination_reason TEXT NOT NULL DEFAULT '',
    eliminated_at      TEXT,
    created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
    id              TEXT PRIMARY KEY,
    strategy_id     TEXT NOT NULL,
    opportunity_id  TEXT NOT NULL,
    outcome_id      TEXT NOT NULL,
    market_id       TEXT NOT NULL,
    event_id        TEXT NOT NULL DEFAULT '',
    home_name       TEXT NOT NULL DEFAULT '',
    away_name       TEXT NOT NULL DEFAULT '',
    side            TEXT NOT NULL DEFAULT '',
    market_type     TEXT NOT NULL,
    asset_class     TEXT NOT NULL,
    symbol          TEXT NOT NULL DEFAULT '',
    correlation_tag TEXT NOT NULL DEFAULT '',
    line            REAL NOT NULL DEFAULT 0,
    direction       TEXT NOT NULL,
    entry_price     REAL NOT NULL,
    target          REAL NOT NULL DEFAULT 0,
    stop            REAL NOT NULL DEFAULT 0,
    max_hold_secs   INTEGER NOT NULL DEFAULT 0,
    stake           REAL NOT NULL,
    ev_pct          REAL NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    exit_reason     TEXT NOT NULL DEFAULT '',
    exit_price      REAL NOT NULL DEFAULT 0,
    gross_pnl       REAL NOT NULL DEFAULT 0,
    fees            REAL NOT NULL DEFAULT 0,
    net_pnl         REAL NOT NULL DEFAULT 0,
    result          TEXT NOT NULL DEFAULT '',
    entry_time      TEXT NOT NULL,
    exit_time       TEXT,
    highest_price   REAL NOT NULL DEFAULT 0,
    lowest_price    REAL NOT NULL DEFAULT 0,
    last_price      REAL NOT NULL DEFAULT 0,
    trail_armed     INTEGER NOT NULL DEFAULT 0,
    trail_floor     REAL NOT NULL DEFAULT 0,
    UNIQUE(strategy_id, opportunity_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS ledgers (
    strategy_id      TEXT PRIMARY KEY,
    balance          REAL NOT NULL,
    initial_balance  REAL NOT NULL,
    peak             REAL NOT NULL,
    trough           REAL NOT NULL,
    max_drawdown_pct REAL NOT NULL DEFAULT 0,
    wins             INTEGER NOT NULL DEFAULT 0,
    losses           INTEGER NOT NULL DEFAULT 0,
    pushes           INTEGER NOT NULL DEFAULT 0,
    settled          INTEGER NOT NULL DEFAULT 0,
    total_wagered    REAL NOT NULL DEFAULT 0,
    total_pnl        REAL NOT NULL DEFAULT 0,
    current_streak   INTEGER NOT NULL DEFAULT 0,
    best_streak      INTEGER NOT NULL DEFAULT 0,
    worst_streak     INTEGER NOT NULL DEFAULT 0,
    avg_odds         REAL NOT NULL DEFAULT 0,
    avg_ev           REAL NOT NULL DEFAULT 0,
    avg_stake        REAL NOT NULL DEFAULT 0,
    avg_win          REAL NOT NULL DEFAULT 0,
    avg_loss         REAL NOT NULL DEFAULT 0,
    updated_at       TEXT
);

CREATE TABLE IF NOT EXISTS snapshots (
    id               TEXT NOT NULL,
    strategy_id      TEXT NOT NULL,
    date             TEXT NOT NULL,
    balance          REAL NOT NULL,
    total_pnl        REAL NOT NULL DEFAULT 0,
    roi_pct          REAL NOT NULL DEFAULT 0,
    win_rate         REAL NOT NULL DEFAULT 0,
    max_drawdown_pct REAL NOT NULL DEFAULT 0,
    open_commitments INTEGER NOT NULL DEFAULT 0,
    settled          INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (strategy_id, date)
);

CREATE INDEX IF NOT EXISTS idx_commitments_status   ON commitments(status);
CREATE INDEX IF NOT EXISTS idx_commitments_strategy ON commitments(strategy_id, status);
CREATE INDEX IF NOT EXISTS idx_commitments_entry    ON commitments(entry_time DESC);
CREATE INDEX IF NOT EXISTS idx_commitments_exit     ON commitments(status, exit_time);
`

// timeLayout tiene ancho fijo para que las comparaciones de texto en SQL
// respeten el orden cronológico. Siempre se escribe en UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dateLayout = "2006-01-02"

// tickState es el último estado de mercado persistido de un commitment abierto.
type tickState struct {
	last, highest, lowest, floor float64
	armed                        bool
}

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db    *sql.DB
	ticks map[string]tickState // commitmentID → último tick guardado
	mu    sync.Mutex
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y precarga la cache de ticks.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{
		db:    db,
		ticks: make(map[string]tickState),
	}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: %w", err)
	}
	s.warmCache(context.Background())
	return s, nil
}

// ApplySchema crea las tablas si no existen. Es idempotente.
func (s *SQLiteStorage) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// tickChanged indica si el estado de mercado difiere del último persistido
// y actualiza la cache con el nuevo estado.
func (s *SQLiteStorage) tickChanged(c domain.Commitment) bool {
	st := tickState{
		last:    c.LastPrice,
		highest: c.HighestPrice,
		lowest:  c.LowestPrice,
		floor:   c.TrailFloor,
		armed:   c.TrailArmed,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.ticks[c.ID]; ok && prev == st {
		return false
	}
	s.ticks[c.ID] = st
	return true
}

func (s *SQLiteStorage) forgetTick(id string) {
	s.mu.Lock()
	delete(s.ticks, id)
	s.mu.Unlock()
}

// warmCache precarga la cache desde la DB al arrancar, evitando escrituras
// redundantes en el primer ciclo tras un reinicio.
func (s *SQLiteStorage) warmCache(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, last_price, highest_price, lowest_price, trail_floor, trail_armed
		FROM commitments WHERE status = 'OPEN'`)
	if err != nil {
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var (
			id    string
			st    tickState
			armed int
		)
		if rows.Scan(&id, &st.last, &st.highest, &st.lowest, &st.floor, &armed) == nil {
			st.armed = armed == 1
			s.ticks[id] = st
		}
	}
}

// querier es la parte común de *sql.DB y *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
