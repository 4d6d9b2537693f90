package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Nombres de los ficheros de un directorio de fixtures. Solo opportunities.json es obligatorio.
const (
	OpportunitiesFile = "opportunities.json"
	PricesFile        = "prices.json"
	ScoresFile        = "scores.json"
	SignalsFile       = "signals.json"
)

// Fixtures implementa los mismos puertos que Client leyendo JSON de un directorio.
// Se usa en modo dry-run y en tests; los ficheros se releen en cada llamada.
type Fixtures struct {
	dir string
	now func() time.Time
}

// NewFixtures crea un Fixtures sobre dir.
func NewFixtures(dir string) *Fixtures {
	return &Fixtures{dir: dir, now: time.Now}
}

// FetchOpportunities lee opportunities.json.
func (f *Fixtures) FetchOpportunities(ctx context.Context) ([]domain.Opportunity, error) {
	var resp opportunitiesResponse
	if err := f.read(OpportunitiesFile, &resp); err != nil {
		return nil, fmt.Errorf("feed.Fixtures.FetchOpportunities: %w", err)
	}
	return mapOpportunities(resp, f.now()), nil
}

// FetchPrices lee prices.json y filtra los símbolos pedidos.
func (f *Fixtures) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	var resp pricesResponse
	if err := f.readOptional(PricesFile, &resp); err != nil {
		return nil, fmt.Errorf("feed.Fixtures.FetchPrices: %w", err)
	}
	all := mapPrices(resp)
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if p, ok := all[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

// FetchOutcomes lee scores.json y devuelve los registros de los eventos o símbolos pedidos.
func (f *Fixtures) FetchOutcomes(ctx context.Context, eventIDs, symbols []string) ([]domain.SettlementRecord, error) {
	var raw []scoreDTO
	if err := f.readOptional(ScoresFile, &raw); err != nil {
		return nil, fmt.Errorf("feed.Fixtures.FetchOutcomes: %w", err)
	}
	wantEvent := toSet(eventIDs, false)
	wantSymbol := toSet(symbols, true)

	var out []domain.SettlementRecord
	for _, r := range mapScores(raw, f.now()) {
		if wantEvent[r.EventID] || (r.Symbol != "" && wantSymbol[r.Symbol]) {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestSignal lee signals.json, un objeto {key: señal}.
func (f *Fixtures) LatestSignal(ctx context.Context, key string) (domain.SizingSignal, bool, error) {
	var raw map[string]signalDTO
	if err := f.readOptional(SignalsFile, &raw); err != nil {
		return domain.SizingSignal{}, false, fmt.Errorf("feed.Fixtures.LatestSignal: %w", err)
	}
	s, ok := raw[key]
	if !ok {
		return domain.SizingSignal{}, false, nil
	}
	sig, ok := mapSignal(key, s)
	return sig, ok, nil
}

func (f *Fixtures) read(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// readOptional trata un fichero ausente como vacío.
func (f *Fixtures) readOptional(name string, out any) error {
	err := f.read(name, out)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func toSet(items []string, upper bool) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if upper {
			s = strings.ToUpper(s)
		}
		set[s] = true
	}
	return set
}
