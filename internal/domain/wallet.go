// Package domain defines the core types and interfaces shared across the
// BidSphere bidding client and service: user profiles, listings, bids, wallet
// validation state, and the store/cache/blob contracts implemented by the
// infrastructure packages.
package domain

import "strings"

// ValidationReason classifies the outcome of a wallet-match check.
type ValidationReason string

const (
	ReasonSuccess           ValidationReason = "success"
	ReasonNoWalletInProfile ValidationReason = "no_wallet_in_profile"
	ReasonNoProvider        ValidationReason = "no_provider"
	ReasonNoAccounts        ValidationReason = "no_accounts"
	ReasonWalletMismatch    ValidationReason = "wallet_mismatch"
	ReasonError             ValidationReason = "error"
)

// WalletValidationState is the verdict of a single wallet-match check. It is
// recomputed on every check and never persisted; the connected account is
// externally mutable at any time, so a stored verdict would be stale the
// instant after it was taken.
type WalletValidationState struct {
	IsValid         bool
	Message         string
	Checking        bool
	Reason          ValidationReason
	ConnectedWallet string
	ExpectedWallet  string
}

// WalletBalance is a wallet's native balance with its fiat equivalent at the
// rate in effect when the balance was read.
type WalletBalance struct {
	ETH float64
	USD float64
}

// NormalizeAddress lowercases a hex wallet address so addresses from
// different sources compare equal regardless of checksum casing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AddressesEqual compares two hex addresses case-insensitively.
func AddressesEqual(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// TruncateAddress shortens an address to its first 6 and last 4 characters
// for user-facing messages, e.g. "0xAb12...9fE3".
func TruncateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
