package models

import (
	"github.com/shopspring/decimal"
)

type FailureReason string

const (
	FailureNone         FailureReason = ""
	FailureUnknownStore FailureReason = "unknown_store"
	FailureNetwork      FailureReason = "network"
	FailureTimeout      FailureReason = "timeout"
	FailureExtraction   FailureReason = "extraction"
	FailureCanceled     FailureReason = "canceled"
)

// FetchResult is the outcome of one fetch+extract cycle. Success implies a
// valid, non-negative price.
type FetchResult struct {
	Price   decimal.NullDecimal `json:"price"`
	Link    string              `json:"link,omitempty"`
	Success bool                `json:"success"`
	Failure FailureReason       `json:"failure,omitempty"`
}

// Found builds a successful result. Negative prices are rejected as an
// extraction failure.
func Found(price decimal.Decimal, link string) FetchResult {
	if price.IsNegative() {
		return Failed(FailureExtraction)
	}
	return FetchResult{
		Price:   decimal.NewNullDecimal(price),
		Link:    link,
		Success: true,
	}
}

func Failed(reason FailureReason) FetchResult {
	return FetchResult{Failure: reason}
}

func (r FetchResult) Available() bool {
	return r.Success && r.Price.Valid
}
