package domain

import "time"

// UserProfile is the locally persisted identity of a bidder. WalletAddress,
// once set, is the authoritative expected signer for every bid this user
// places; it is compared case-insensitively against the connected account.
type UserProfile struct {
	ID            string
	Name          string
	Email         string
	WalletAddress string // empty until a wallet is connected
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasWallet reports whether a wallet address is on file.
func (p UserProfile) HasWallet() bool {
	return p.WalletAddress != ""
}

// WalletMatches reports whether addr is the wallet on file, compared
// case-insensitively. A profile without a wallet matches nothing.
func (p UserProfile) WalletMatches(addr string) bool {
	return p.HasWallet() && AddressesEqual(p.WalletAddress, addr)
}
