package domain

import (
	"time"
)

// Transaction represents a transfer, mint, or retire event on the token
// ledger. Transactions are immutable history; Kestrel treats them as
// read-only input.
type Transaction struct {
	ID string `json:"id"`

	// At least one of FromUserID / ToUserID is present. Mint events have
	// no sender, retire events have no receiver.
	FromUserID string `json:"fromUserId,omitempty"`
	ToUserID   string `json:"toUserId,omitempty"`

	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
	Status string  `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
}

// Transaction type constants.
const (
	TransactionTypeTransfer = "transfer"
	TransactionTypeMint     = "mint"
	TransactionTypeRetire   = "retire"
)

// Transaction status constants.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Counterparty returns the id the transaction is attributed to for
// pattern analysis: the sender if present, otherwise the receiver.
func (t *Transaction) Counterparty() string {
	if t.FromUserID != "" {
		return t.FromUserID
	}
	return t.ToUserID
}
