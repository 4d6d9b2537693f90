package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// CommitmentFilter selecciona una página de commitments. Los campos vacíos no filtran.
type CommitmentFilter struct {
	StrategyID string
	Status     domain.CommitmentStatus
	Page       int // empieza en 1
	Limit      int
}

// Storage persiste estrategias, commitments, ledgers y snapshots.
type Storage interface {
	ApplySchema(ctx context.Context) error

	// Estrategias
	SeedStrategies(ctx context.Context, strategies []domain.Strategy) error
	SaveStrategy(ctx context.Context, s domain.Strategy) error
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)

	// Commitments. InsertCommitment devuelve domain.ErrDuplicateAcceptance si
	// la clave (estrategia, oportunidad, outcome) ya existe.
	InsertCommitment(ctx context.Context, c domain.Commitment) error
	UpdateCommitmentTick(ctx context.Context, c domain.Commitment) error
	// CloseCommitment persiste el cierre y aplica el ledger en la misma transacción.
	// Devuelve domain.ErrAlreadyClosed si el commitment ya no estaba abierto.
	CloseCommitment(ctx context.Context, c domain.Commitment) (domain.BankrollLedger, error)
	GetCommitment(ctx context.Context, id string) (domain.Commitment, error)
	OpenCommitments(ctx context.Context, strategyID string) ([]domain.Commitment, error)
	RecentStops(ctx context.Context, since time.Time) ([]domain.Commitment, error)
	ListCommitments(ctx context.Context, f CommitmentFilter) ([]domain.Commitment, int, error)

	// Ledgers y snapshots
	GetLedger(ctx context.Context, strategyID string) (domain.BankrollLedger, error)
	ListLedgers(ctx context.Context) ([]domain.BankrollLedger, error)
	ResetLedger(ctx context.Context, strategyID string, initial float64) error
	UpsertSnapshot(ctx context.Context, s domain.BankrollSnapshot) error
	ListSnapshots(ctx context.Context, strategyID string) ([]domain.BankrollSnapshot, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
