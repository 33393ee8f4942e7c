package models

// LatestRequest asks for the most recent observation of one metric.
type LatestRequest struct {
	Type   string `query:"type" validate:"required" json:"type"`
	Symbol string `query:"symbol" validate:"required" json:"symbol"`
}

// SeriesRequest asks for the recent history of one metric.
type SeriesRequest struct {
	Type   string `query:"type" validate:"required" json:"type"`
	Symbol string `query:"symbol" validate:"required" json:"symbol"`
	Limit  int    `query:"limit" default:"100" validate:"omitempty,min=1,max=1000" json:"limit"`
}

// AlertsRequest asks for the most recent accepted alerts.
type AlertsRequest struct {
	Limit int `query:"limit" default:"50" validate:"omitempty,min=1,max=500" json:"limit"`
}
