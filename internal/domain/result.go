package domain

import (
	"time"
)

// Snapshot is the immutable merged view of the four source collections
// for one pipeline run. A failed or malformed source is substituted with
// an empty collection and recorded in Warnings; detectors never see a
// partially-fetched snapshot.
type Snapshot struct {
	Credits      []Credit           `json:"credits"`
	Transactions []Transaction      `json:"transactions"`
	Listings     []Listing          `json:"listings"`
	Stats        map[string]float64 `json:"stats,omitempty"`

	FetchedAt time.Time `json:"fetchedAt"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// MonthBucket is one trailing calendar-month count, oldest first.
type MonthBucket struct {
	Month string `json:"month"` // formatted 2006-01
	Count int    `json:"count"`
}

// Analytics is the derived, disposable view recomputed on each refresh.
type Analytics struct {
	CreditsByMonth      []MonthBucket `json:"creditsByMonth"`
	TransactionsByMonth []MonthBucket `json:"transactionsByMonth"`

	CreditStatus      map[string]int `json:"creditStatus"`
	TransactionStatus map[string]int `json:"transactionStatus"`
	TransactionTypes  map[string]int `json:"transactionTypes"`
	ListingStatus     map[string]int `json:"listingStatus"`

	// Stats carries the precomputed registry statistics through to the
	// caller untouched.
	Stats map[string]float64 `json:"stats,omitempty"`
}

// Scores are the three system-wide scalars derived from detector output
// and entity counts.
type Scores struct {
	// Health is 0-100, higher is better.
	Health float64 `json:"health"`

	// Risk is 0-100, higher is worse.
	Risk float64 `json:"risk"`

	// Compliance is the 0-100 percentage of records in a terminal,
	// auditable state.
	Compliance float64 `json:"compliance"`
}

// ResultMetadata records pipeline timing for one refresh.
type ResultMetadata struct {
	FetchMs       int64  `json:"fetchMs"`
	ComputeMs     int64  `json:"computeMs"`
	TotalMs       int64  `json:"totalMs"`
	DetectorsRun  int    `json:"detectorsRun"`
	EngineVersion string `json:"engineVersion"`
}

// Result is the output bundle of one refresh. A subsequent refresh fully
// replaces it; there is no incremental merge.
type Result struct {
	Snapshot  Snapshot       `json:"snapshot"`
	Alerts    []Alert        `json:"alerts"`
	Analytics Analytics      `json:"analytics"`
	Scores    Scores         `json:"scores"`
	Metadata  ResultMetadata `json:"metadata"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// Refresh orchestrator states.
const (
	StateIdle      = "idle"
	StateFetching  = "fetching"
	StateComputing = "computing"
	StateReady     = "ready"
	StateError     = "error"
)
