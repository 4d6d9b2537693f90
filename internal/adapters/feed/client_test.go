package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybet/internal/adapters/feed"
	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/domain"
)

func newTestClient(srv *httptest.Server) *feed.Client {
	return feed.NewClient(feed.Config{BaseURL: srv.URL, RatePerSec: 1000, Burst: 100}, cache.NewTTL[string, []byte](time.Minute))
}

func serveFixture(t *testing.T, path, name string, hits *int32) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
}

func TestFetchOpportunities_Success(t *testing.T) {
	srv := serveFixture(t, "/v1/opportunities", feed.OpportunitiesFile, nil)
	defer srv.Close()

	opps, err := newTestClient(srv).FetchOpportunities(context.Background())
	require.NoError(t, err)
	// 8 outcomes Lakers/Celtics, 2 Chiefs/Bills, 0 del mercado con empate, 2 posiciones
	require.Len(t, opps, 12)

	h2h := opps[0]
	assert.Equal(t, "evt-lal-bos:h2h", h2h.ID)
	assert.Equal(t, "home", h2h.OutcomeID)
	assert.Equal(t, domain.SideHome, h2h.Side)
	assert.Equal(t, domain.MarketMoneyline, h2h.MarketType)
	assert.Equal(t, domain.AssetSports, h2h.AssetClass)
	assert.Equal(t, "Los Angeles Lakers", h2h.HomeName)
	assert.Equal(t, "evt-lal-bos", h2h.CorrelationTag)
	require.Len(t, h2h.Quotes, 2)
	assert.Equal(t, "pinnacle", h2h.Quotes[0].Source)
	assert.Equal(t, 2.05, h2h.Quotes[1].Price)
	assert.Equal(t, time.Date(2099, 1, 10, 1, 0, 0, 0, time.UTC), h2h.Expiry)
	assert.Greater(t, h2h.MaxHold, 4*time.Hour)

	spreadAway := opps[3]
	assert.Equal(t, "evt-lal-bos:spreads:-3.5", spreadAway.MarketID)
	assert.Equal(t, domain.SideAway, spreadAway.Side)
	assert.Equal(t, 3.5, spreadAway.Line)
	assert.Len(t, spreadAway.Quotes, 2)

	// la segunda línea de totales es un mercado propio con una sola fuente
	assert.Equal(t, "evt-lal-bos:totals:221.5", opps[6].MarketID)
	assert.Len(t, opps[6].Quotes, 1)

	btc := opps[10]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, domain.AssetCrypto, btc.AssetClass)
	assert.Equal(t, domain.Long, btc.Direction)
	assert.Equal(t, "long", btc.OutcomeID)
	assert.Equal(t, 72*time.Hour, btc.MaxHold)
	assert.Equal(t, []float64{98, 99, 101, 100}, btc.RecentPrices)

	fed := opps[11]
	assert.Equal(t, "fed-cut-march", fed.MarketID)
	assert.Equal(t, domain.SideYes, fed.Side)
	assert.Equal(t, domain.AssetPrediction, fed.AssetClass)
	assert.False(t, fed.Timestamp.IsZero())
}

func TestFetchOpportunities_CachedWithinTTL(t *testing.T) {
	var hits int32
	srv := serveFixture(t, "/v1/opportunities", feed.OpportunitiesFile, &hits)
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.FetchOpportunities(context.Background())
	require.NoError(t, err)
	_, err = client.FetchOpportunities(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchOpportunities_RetriesServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"events":[],"positions":[]}`))
	}))
	defer srv.Close()

	opps, err := newTestClient(srv).FetchOpportunities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchOpportunities_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchOpportunities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchOpportunities_SendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := feed.NewClient(feed.Config{BaseURL: srv.URL + "/", APIKey: "secret"}, nil)
	_, err := client.FetchOpportunities(context.Background())
	require.NoError(t, err)
}

func TestFetchPrices(t *testing.T) {
	srv := serveFixture(t, "/v1/prices", feed.PricesFile, nil)
	defer srv.Close()

	prices, err := newTestClient(srv).FetchPrices(context.Background(), []string{"BTC", "FEDCUT-MAR", "SPY"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 103.5, "FEDCUT-MAR": 0.45}, prices)
}

func TestFetchPrices_SortedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC,ETH", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"prices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrices(context.Background(), []string{"ETH", "BTC", "ETH"})
	require.NoError(t, err)
}

func TestFetchPrices_NoSymbols(t *testing.T) {
	client := feed.NewClient(feed.Config{BaseURL: "http://127.0.0.1:0"}, nil)
	prices, err := client.FetchPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestFetchOutcomes(t *testing.T) {
	srv := serveFixture(t, "/v1/scores", feed.ScoresFile, nil)
	defer srv.Close()

	recs, err := newTestClient(srv).FetchOutcomes(context.Background(), []string{"evt-lal-bos", "evt-kc-buf"}, []string{"BTC"})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	lal := recs[0]
	assert.True(t, lal.Completed)
	assert.Equal(t, "LA Lakers", lal.HomeName)
	assert.Equal(t, 112.0, lal.HomeValue)
	assert.Equal(t, 108.0, lal.AwayValue)
	assert.Equal(t, "feed", lal.Source)
	assert.Equal(t, time.Date(2099, 1, 10, 4, 0, 0, 0, time.UTC), lal.ObservedAt)

	assert.False(t, recs[1].Completed)

	btc := recs[2]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, 107.25, btc.FinalPrice)
	assert.Equal(t, "exchange-close", btc.Source)
}

func TestFetchOutcomes_UnparsableScoreNotCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"e1","completed":true,"home_team":"A","away_team":"B",
			"scores":[{"name":"A","score":"abandoned"},{"name":"B","score":"1"}]}]`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv).FetchOutcomes(context.Background(), []string{"e1"}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Completed)
}

func TestLatestSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/signals/BTC" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"key":"BTC","pct":0.025,"at":"2099-01-09T12:00:00Z","source":"vol-model"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	sig, ok, err := client.LatestSignal(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.025, sig.Pct)
	assert.Equal(t, "vol-model", sig.Source)

	_, ok, err = client.LatestSignal(context.Background(), "ETH")
	require.NoError(t, err)
	assert.False(t, ok)
}
