package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
)

// Bid-flow errors. These map one-to-one onto the failure modes a bidder can
// hit between opening the bid panel and the backend acknowledging the bid.
var (
	ErrNoWalletOnProfile  = errors.New("no wallet address on profile")
	ErrNoProviderDetected = errors.New("no wallet provider detected")
	ErrNoAccountConnected = errors.New("no wallet account connected")
	ErrWalletMismatch     = errors.New("connected wallet does not match profile")
	ErrInvalidBidAmount   = errors.New("invalid bid amount")
	ErrBidTooLow          = errors.New("bid amount too low")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUserRejected       = errors.New("user rejected signature request")
	ErrGasEstimation      = errors.New("gas estimation failed")
	ErrOnChainSubmission  = errors.New("on-chain submission failed")

	// ErrBackendRecording marks the partial-failure case: the chain
	// transaction succeeded but the backend did not persist the bid. The
	// transaction hash must be preserved alongside this error.
	ErrBackendRecording = errors.New("bid recorded on chain but not in backend")

	// ErrSubmissionInFlight is returned when a second submission is attempted
	// while the panel's current submission has not reached a terminal state.
	ErrSubmissionInFlight = errors.New("a bid submission is already in flight")

	ErrPanelClosed = errors.New("bid panel closed")
)
