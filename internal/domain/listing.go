package domain

import (
	"time"
)

// Listing represents a marketplace offer of credits at a unit price.
// Read-only to Kestrel.
type Listing struct {
	ID             string    `json:"id"`
	CreditType     string    `json:"creditType"`
	PricePerCredit float64   `json:"pricePerCredit"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Listing status constants.
const (
	ListingStatusActive = "active"
	ListingStatusSold   = "sold"
	ListingStatusClosed = "closed"
)
