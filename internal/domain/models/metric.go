package models

import (
	"fmt"
	"time"
)

// DataType identifies a class of collected data.
type DataType string

const (
	DataTypePrice         DataType = "PRICE"
	DataTypeMarketIndex   DataType = "MARKET_INDEX"
	DataTypeSentimentIdx  DataType = "SENTIMENT_INDEX"
	DataTypeTreasuryYield DataType = "TREASURY_YIELD"
	DataTypeInflation     DataType = "INFLATION"
	DataTypeFundingRate   DataType = "FUNDING_RATE"
	DataTypeOpenInterest  DataType = "OPEN_INTEREST"
	DataTypeDominance     DataType = "DOMINANCE"
	DataTypeStablecoinCap DataType = "STABLECOIN_CAP"
	DataTypeSSR           DataType = "SSR"
)

// MetricKey is the stable (dataType, symbol) key callers request,
// independent of which provider ultimately supplies the value.
type MetricKey struct {
	DataType DataType
	Symbol   string
}

func (k MetricKey) String() string {
	return fmt.Sprintf("%s/%s", k.DataType, k.Symbol)
}

// FastMoving reports whether the data class changes quickly enough to
// warrant a short cache TTL.
func (t DataType) FastMoving() bool {
	switch t {
	case DataTypePrice, DataTypeMarketIndex, DataTypeFundingRate, DataTypeOpenInterest:
		return true
	}
	return false
}

// Observation is one collected value for a metric.
type Observation struct {
	DataType DataType
	Symbol   string
	Value    float64
	Source   string // provider id that supplied the value
	Ts       time.Time
}

func (o *Observation) Key() MetricKey {
	return MetricKey{DataType: o.DataType, Symbol: o.Symbol}
}
