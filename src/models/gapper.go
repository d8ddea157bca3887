package models

import "github.com/shopspring/decimal"

// MTopGapper is one row of the ranked top-movers list.
type MTopGapper struct {
	Ticker string          `json:"ticker"`
	Score  decimal.Decimal `json:"score"`
}

// MActionAck is the acknowledgement returned by analyze / pin.
type MActionAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MAPIError is the error body returned by the backend.
type MAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
