package models

import "time"

type Sentiment string

const (
	SentimentBearish  Sentiment = "bearish"
	SentimentNeutral  Sentiment = "neutral"
	SentimentBullish  Sentiment = "bullish"
	SentimentEuphoric Sentiment = "euphoric"
)

// TrendingItem is one trending asset as reported by an aggregator feed.
type TrendingItem struct {
	ID             string
	Name           string
	Symbol         string
	Rank           int
	Score          float64 // provider popularity score, unnormalized
	PriceChange24h float64 // percent
	Volume24h      float64
	MarketCap      float64
}

// NarrativeGroup is one classified bucket of trending items. Groups are
// rebuilt whole on every classification pass, never mutated in place.
type NarrativeGroup struct {
	Label          string
	Members        []string // symbols, in input order
	TotalVolume    float64
	TotalMarketCap float64
	AvgChange      float64
	Sentiment      Sentiment
	MoneyFlowScore float64
	RelevanceScore float64 // in [0, 1]
	ComputedAt     time.Time
}
