package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
)

func trendingFixture() []*models.TrendingItem {
	return []*models.TrendingItem{
		{ID: "1", Name: "Render Network", Symbol: "RNDR", Score: 90, PriceChange24h: 12, Volume24h: 40e6, MarketCap: 2e9},
		{ID: "2", Name: "Fetch AI", Symbol: "FET", Score: 80, PriceChange24h: 5, Volume24h: 25e6, MarketCap: 1e9},
		{ID: "3", Name: "Dogecoin", Symbol: "DOGE", Score: 70, PriceChange24h: -4, Volume24h: 60e6, MarketCap: 10e9},
		{ID: "4", Name: "Pepe", Symbol: "PEPE", Score: 60, PriceChange24h: 20, Volume24h: 30e6, MarketCap: 3e9},
		{ID: "5", Name: "Uniswap", Symbol: "UNI", Score: 30, PriceChange24h: 1, Volume24h: 15e6, MarketCap: 5e9},
		{ID: "6", Name: "Obscurium", Symbol: "OBS", Score: 10, PriceChange24h: 0, Volume24h: 1e6, MarketCap: 1e7},
	}
}

func TestClassifyBucketsAndRanks(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n := NewNarrativeClassifier(clock, 5, 0.3)

	groups := n.Classify(trendingFixture())
	require.NotEmpty(t, groups)

	byLabel := make(map[string]*models.NarrativeGroup)
	for _, g := range groups {
		byLabel[g.Label] = g
	}

	ai := byLabel["AI & Big Data"]
	require.NotNil(t, ai)
	assert.ElementsMatch(t, []string{"RNDR", "FET"}, ai.Members)
	assert.InDelta(t, 8.5, ai.AvgChange, 1e-9)

	meme := byLabel["Meme Coins"]
	require.NotNil(t, meme)
	assert.ElementsMatch(t, []string{"DOGE", "PEPE"}, meme.Members)

	require.NotNil(t, byLabel["DeFi"])
	require.NotNil(t, byLabel["Emerging Trends"])

	// ranking is by money flow, descending
	for i := 1; i < len(groups); i++ {
		assert.GreaterOrEqual(t, groups[i-1].MoneyFlowScore, groups[i].MoneyFlowScore)
	}

	var total float64
	for _, g := range groups {
		total += g.RelevanceScore
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestClassifyDeterministic(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n := NewNarrativeClassifier(clock, 5, 0.3)

	a := n.Classify(trendingFixture())
	b := n.Classify(trendingFixture())
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Label, b[i].Label)
		assert.Equal(t, a[i].Members, b[i].Members)
		assert.Equal(t, a[i].Sentiment, b[i].Sentiment)
		assert.Equal(t, a[i].MoneyFlowScore, b[i].MoneyFlowScore)
	}
}

func TestClassifyTopKTruncation(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n := NewNarrativeClassifier(clock, 2, 0.3)

	groups := n.Classify(trendingFixture())
	assert.Len(t, groups, 2)
}

func TestClassifyEmptyInput(t *testing.T) {
	n := NewNarrativeClassifier(newFakeClock(time.Now()), 5, 0.3)
	assert.Nil(t, n.Classify(nil))
}

func TestClassifyNegativeGroupDamped(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n := NewNarrativeClassifier(clock, 5, 0.3)

	items := []*models.TrendingItem{
		{ID: "1", Name: "Dogecoin", Symbol: "DOGE", Score: 50, PriceChange24h: -8, Volume24h: 10e6},
		{ID: "2", Name: "Uniswap", Symbol: "UNI", Score: 50, PriceChange24h: 2, Volume24h: 10e6},
	}
	groups := n.Classify(items)
	require.Len(t, groups, 2)

	byLabel := make(map[string]*models.NarrativeGroup)
	for _, g := range groups {
		byLabel[g.Label] = g
	}
	// same volume, but the losing group is damped
	assert.Less(t, byLabel["Meme Coins"].MoneyFlowScore, byLabel["DeFi"].MoneyFlowScore)
}

func TestClassifyFlatGroupDamped(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n := NewNarrativeClassifier(clock, 5, 0.3)

	items := []*models.TrendingItem{
		{ID: "1", Name: "Newcoin", Symbol: "NEW", Score: 50, PriceChange24h: 0, Volume24h: 10e6},
	}
	groups := n.Classify(items)
	require.Len(t, groups, 1)

	// a flat group gets the damped multiplier, not full momentum
	assert.InDelta(t, 3.0, groups[0].MoneyFlowScore, 1e-9)
}

func TestItemSentimentBands(t *testing.T) {
	hot := &models.TrendingItem{Score: 100, PriceChange24h: 15}
	assert.Equal(t, models.SentimentEuphoric, itemSentiment(hot, 100))

	cold := &models.TrendingItem{Score: 10, PriceChange24h: -15}
	assert.Equal(t, models.SentimentBearish, itemSentiment(cold, 100))

	flat := &models.TrendingItem{Score: 50, PriceChange24h: 0}
	assert.Equal(t, models.SentimentNeutral, itemSentiment(flat, 100))
}
