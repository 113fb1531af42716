package domain

import "time"

// Bid is a recorded bid as the backend persists it. Amount is the fiat bid
// price; TransactionHash links it to the on-chain escrow payment.
type Bid struct {
	ID              string
	ListingID       string
	UserID          string
	Amount          float64
	TransactionHash string
	CreatedAt       time.Time
}

// BidConfirmation is the ephemeral record produced after a transaction has
// been mined. Error=true marks the partial-failure mode where the chain
// transaction succeeded but the backend failed to persist the bid; the hash
// must still be shown so the bid can be reconciled manually.
type BidConfirmation struct {
	BidPrice        float64
	BidDate         time.Time
	TransactionHash string
	Error           bool
}
