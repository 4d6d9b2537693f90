package ports

import (
	"context"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Notifier presenta los candidatos encontrados al usuario.
type Notifier interface {
	// Notify muestra los candidatos ordenados por EV.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, candidates []domain.Candidate) error
}
