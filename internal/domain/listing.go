package domain

import "time"

// ListingStatus represents the lifecycle state of an auction listing.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusEnded  ListingStatus = "ended"
	ListingStatusSold   ListingStatus = "sold"
)

// BidSnapshot is the latest-bid summary embedded in a listing.
type BidSnapshot struct {
	BidPrice float64   `json:"bidPrice"`
	BidDate  time.Time `json:"bidDate"`
}

// Listing is an auctionable item. IDs are UUID strings; the hyphen-stripped
// UUID is what gets packed into the on-chain placeBid call.
type Listing struct {
	ID            string
	Title         string
	Description   string
	SellerID      string
	StartingPrice float64
	LatestBid     *BidSnapshot
	EndDate       time.Time
	Status        ListingStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MinimumBid returns the current minimum acceptable reference price: the
// latest bid when one exists, otherwise the starting price. A new bid must be
// strictly greater than this value.
func (l Listing) MinimumBid() float64 {
	if l.LatestBid != nil {
		return l.LatestBid.BidPrice
	}
	return l.StartingPrice
}

// AcceptsBid reports whether amount clears the strictly-greater-than rule.
func (l Listing) AcceptsBid(amount float64) bool {
	return amount > l.MinimumBid()
}

// IsOpen reports whether the listing can still receive bids at the given time.
func (l Listing) IsOpen(now time.Time) bool {
	return l.Status == ListingStatusActive && now.Before(l.EndDate)
}
