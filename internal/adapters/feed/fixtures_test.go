package feed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybet/internal/adapters/feed"
)

const fixturesDir = "../../../testdata/fixtures"

func TestFixtures_Opportunities(t *testing.T) {
	opps, err := feed.NewFixtures(fixturesDir).FetchOpportunities(context.Background())
	require.NoError(t, err)
	assert.Len(t, opps, 12)
}

func TestFixtures_PricesFiltered(t *testing.T) {
	prices, err := feed.NewFixtures(fixturesDir).FetchPrices(context.Background(), []string{"btc", "ETH"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 103.5}, prices)
}

func TestFixtures_OutcomesFiltered(t *testing.T) {
	recs, err := feed.NewFixtures(fixturesDir).FetchOutcomes(context.Background(), []string{"evt-lal-bos"}, []string{"btc"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "evt-lal-bos", recs[0].EventID)
	assert.Equal(t, "BTC", recs[1].Symbol)
}

func TestFixtures_Signals(t *testing.T) {
	f := feed.NewFixtures(fixturesDir)

	sig, ok, err := f.LatestSignal(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.03, sig.Pct)

	// pct 0 no es una señal utilizable
	_, ok, err = f.LatestSignal(context.Background(), "SPY")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFixtures_MissingDirectory(t *testing.T) {
	f := feed.NewFixtures(t.TempDir())

	_, err := f.FetchOpportunities(context.Background())
	assert.Error(t, err)

	prices, err := f.FetchPrices(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	assert.Empty(t, prices)

	_, ok, err := f.LatestSignal(context.Background(), "BTC")
	require.NoError(t, err)
	assert.False(t, ok)
}
