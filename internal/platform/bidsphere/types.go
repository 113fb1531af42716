package bidsphere

import (
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// APIBidSnapshot is the latest-bid summary as the backend serializes it.
type APIBidSnapshot struct {
	BidPrice float64   `json:"bidPrice"`
	BidDate  time.Time `json:"bidDate"`
}

// APIListing is the wire representation of a listing.
type APIListing struct {
	ID            string          `json:"listingId"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	SellerID      string          `json:"sellerId"`
	StartingPrice float64         `json:"startingPrice"`
	LatestBid     *APIBidSnapshot `json:"latestBid,omitempty"`
	EndDate       time.Time       `json:"endDate"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ToDomain converts the wire listing into the domain model.
func (l APIListing) ToDomain() domain.Listing {
	out := domain.Listing{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		SellerID:      l.SellerID,
		StartingPrice: l.StartingPrice,
		EndDate:       l.EndDate,
		Status:        domain.ListingStatus(l.Status),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.LatestBid != nil {
		out.LatestBid = &domain.BidSnapshot{
			BidPrice: l.LatestBid.BidPrice,
			BidDate:  l.LatestBid.BidDate,
		}
	}
	return out
}

// CreateBidRequest is the payload for POST /api/bid/create. Amount is the
// integer floor of the fiat bid price; the transaction hash links the record
// to the on-chain escrow payment.
type CreateBidRequest struct {
	ListingID       string `json:"listingId"`
	UserID          string `json:"userId"`
	Amount          int64  `json:"amount"`
	TransactionHash string `json:"transactionHash"`
}

// APIBid is the wire representation of a recorded bid.
type APIBid struct {
	ID              string    `json:"bidId"`
	ListingID       string    `json:"listingId"`
	UserID          string    `json:"userId"`
	Amount          float64   `json:"amount"`
	TransactionHash string    `json:"transactionHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ToDomain converts the wire bid into the domain model.
func (b APIBid) ToDomain() domain.Bid {
	return domain.Bid{
		ID:              b.ID,
		ListingID:       b.ListingID,
		UserID:          b.UserID,
		Amount:          b.Amount,
		TransactionHash: b.TransactionHash,
		CreatedAt:       b.CreatedAt,
	}
}

// RegisterUserRequest is the payload for POST /api/user/register.
type RegisterUserRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// APIUser is the wire representation of a user profile.
type APIUser struct {
	ID            string    `json:"userId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ToDomain converts the wire user into the domain model.
func (u APIUser) ToDomain() domain.UserProfile {
	return domain.UserProfile{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		WalletAddress: u.WalletAddress,
		CreatedAt:     u.CreatedAt,
	}
}
