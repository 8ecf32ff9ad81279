// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Credit represents a production-credit record issued through the
// certification workflow. Kestrel only reads credits; it never owns
// their lifecycle.
type Credit struct {
	ID         string  `json:"id"`
	ProducerID string  `json:"producerId"`
	Amount     float64 `json:"amount"`

	// Status follows a monotone transition: pending -> approved | rejected.
	Status string `json:"status"`

	ProductionDetails ProductionDetails `json:"productionDetails"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProductionDetails describes where and how the credited output was produced.
type ProductionDetails struct {
	FacilityName string `json:"facilityName"`
	Location     string `json:"location"`
	Method       string `json:"method,omitempty"`
}

// Credit status constants.
const (
	CreditStatusPending  = "pending"
	CreditStatusApproved = "approved"
	CreditStatusRejected = "rejected"
)

// Terminal reports whether the credit has reached an auditable final state.
func (c *Credit) Terminal() bool {
	return c.Status == CreditStatusApproved || c.Status == CreditStatusRejected
}
