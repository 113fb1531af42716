package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{
			name: "full_address",
			addr: "0xAb5801a7D398351b8bE11C439e05C5b3259aec9B",
			want: "0xAb58...ec9B",
		},
		{
			name: "short_address_unchanged",
			addr: "0x1234",
			want: "0x1234",
		},
		{
			name: "empty",
			addr: "",
			want: "",
		},
		{
			name: "boundary_ten_chars",
			addr: "0x12345678",
			want: "0x12345678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, TruncateAddress(tt.addr))
		})
	}
}

func TestAddressesEqual(t *testing.T) {
	require.True(t, AddressesEqual(
		"0xAb5801a7D398351b8bE11C439e05C5b3259aec9B",
		"0xab5801a7d398351b8be11c439e05c5b3259aec9b",
	))
	require.True(t, AddressesEqual("  0xABC ", "0xabc"))
	require.False(t, AddressesEqual("0xabc", "0xdef"))
	require.True(t, AddressesEqual("", ""))
}

func TestWalletMatches(t *testing.T) {
	p := UserProfile{WalletAddress: "0xAb5801a7D398351b8bE11C439e05C5b3259aec9B"}
	require.True(t, p.WalletMatches("0xab5801a7d398351b8be11c439e05c5b3259aec9b"))
	require.False(t, p.WalletMatches("0x0000000000000000000000000000000000000001"))

	empty := UserProfile{}
	require.False(t, empty.WalletMatches(""))
	require.False(t, empty.HasWallet())
}
