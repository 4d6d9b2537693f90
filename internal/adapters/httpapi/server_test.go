package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybet/internal/adapters/httpapi"
	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
)

// mockService registra las llamadas y devuelve respuestas fijas.
type mockService struct {
	rows       []engine.LeaderboardRow
	filter     ports.CommitmentFilter
	snapshotAt time.Time
	closed     map[string]float64
	placements int
}

func (m *mockService) Leaderboard(context.Context) ([]engine.LeaderboardRow, error) {
	return m.rows, nil
}

func (m *mockService) StrategyDetail(_ context.Context, id string, recent int) (*engine.StrategyDetail, error) {
	if id != "value" {
		return nil, fmt.Errorf("registry.Get: %s: %w", id, domain.ErrNotFound)
	}
	return &engine.StrategyDetail{Strategy: domain.Strategy{ID: id, Name: "Value bettor"}}, nil
}

func (m *mockService) Snapshots(_ context.Context, id string) ([]domain.BankrollSnapshot, error) {
	return []domain.BankrollSnapshot{{StrategyID: id, Balance: 1010}}, nil
}

func (m *mockService) Commitments(_ context.Context, f ports.CommitmentFilter) (*engine.CommitmentPage, error) {
	m.filter = f
	return &engine.CommitmentPage{Items: []domain.Commitment{{ID: "c1"}}, Total: 1, Page: f.Page, Limit: f.Limit}, nil
}

func (m *mockService) RunPlacementCycle(context.Context) (*engine.PlacementResult, error) {
	m.placements++
	return &engine.PlacementResult{Placed: 2}, nil
}

func (m *mockService) RunPriceUpdate(context.Context) (*engine.PriceResult, error) {
	return &engine.PriceResult{}, nil
}

func (m *mockService) RunSettlement(context.Context) (*engine.SettlementResult, error) {
	return &engine.SettlementResult{Settled: 1}, nil
}

func (m *mockService) RunElimination(context.Context) (*engine.EliminationResult, error) {
	return &engine.EliminationResult{Evaluated: 3}, nil
}

func (m *mockService) TakeSnapshot(_ context.Context, date time.Time) (int, error) {
	m.snapshotAt = date
	return 3, nil
}

func (m *mockService) ResetStrategy(_ context.Context, id string) (domain.Strategy, error) {
	return domain.Strategy{ID: id, Status: domain.StrategyActive}, nil
}

func (m *mockService) CloseManual(_ context.Context, id string, price float64) (domain.Commitment, error) {
	if id == "gone" {
		return domain.Commitment{}, fmt.Errorf("engine.CloseManual: %w", domain.ErrAlreadyClosed)
	}
	if m.closed == nil {
		m.closed = map[string]float64{}
	}
	m.closed[id] = price
	return domain.Commitment{ID: id, Status: domain.StatusClosedManual, ExitPrice: price}, nil
}

func newServer(token string) (*mockService, http.Handler) {
	svc := &mockService{rows: []engine.LeaderboardRow{{StrategyID: "value", Balance: 1100}}}
	return svc, httpapi.New(svc, token).Handler()
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set(httpapi.AdminTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newServer("secret")
	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLeaderboard(t *testing.T) {
	_, h := newServer("secret")
	rec := do(h, http.MethodGet, "/api/v1/leaderboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Strategies []engine.LeaderboardRow `json:"strategies"`
		Count      int                     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "value", body.Strategies[0].StrategyID)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStrategyDetail_NotFound(t *testing.T) {
	_, h := newServer("secret")
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/strategies/value", "", "").Code)

	rec := do(h, http.MethodGet, "/api/v1/strategies/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestSnapshots(t *testing.T) {
	_, h := newServer("secret")
	rec := do(h, http.MethodGet, "/api/v1/strategies/value/snapshots", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestCommitments_Filters(t *testing.T) {
	svc, h := newServer("secret")
	rec := do(h, http.MethodGet, "/api/v1/commitments?strategy=value&status=open&page=2&limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, ports.CommitmentFilter{StrategyID: "value", Status: domain.StatusOpen, Page: 2, Limit: 10}, svc.filter)
}

func TestCommitments_DefaultsAndBadStatus(t *testing.T) {
	svc, h := newServer("secret")
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/commitments?limit=100000&page=-1", "", "").Code)
	assert.Equal(t, 1, svc.filter.Page)
	assert.Equal(t, 50, svc.filter.Limit)

	rec := do(h, http.MethodGet, "/api/v1/commitments?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	svc, h := newServer("secret")

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/admin/placement", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/admin/placement", "wrong", "").Code)
	assert.Equal(t, 0, svc.placements)

	rec := do(h, http.MethodPost, "/api/v1/admin/placement", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.placements)
	assert.Contains(t, rec.Body.String(), `"Placed":2`)
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	_, h := newServer("")
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/api/v1/admin/settlement", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/api/v1/admin/settlement", "anything", "").Code)
}

func TestAdmin_Triggers(t *testing.T) {
	_, h := newServer("secret")
	for _, path := range []string{"prices", "settlement", "elimination", "snapshot"} {
		rec := do(h, http.MethodPost, "/api/v1/admin/"+path, "secret", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAdmin_SnapshotDate(t *testing.T) {
	svc, h := newServer("secret")
	rec := do(h, http.MethodPost, "/api/v1/admin/snapshot?date=2025-03-02", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), svc.snapshotAt)

	rec = do(h, http.MethodPost, "/api/v1/admin/snapshot?date=yesterday", "secret", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_ResetStrategy(t *testing.T) {
	_, h := newServer("secret")
	rec := do(h, http.MethodPost, "/api/v1/admin/strategies/value/reset", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Status":"active"`)
}

func TestAdmin_CloseCommitment(t *testing.T) {
	svc, h := newServer("secret")

	rec := do(h, http.MethodPost, "/api/v1/admin/commitments/c1/close", "secret", `{"price": 104.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 104.5, svc.closed["c1"])

	rec = do(h, http.MethodPost, "/api/v1/admin/commitments/c2/close", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, svc.closed["c2"])

	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/api/v1/admin/commitments/gone/close", "secret", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/admin/commitments/c3/close", "secret", "{").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/admin/commitments/c3/close", "secret", `{"price":-1}`).Code)
}
