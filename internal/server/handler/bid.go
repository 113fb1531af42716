package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/service"
)

// BidHandler serves bid endpoints.
type BidHandler struct {
	bids *service.BidService
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(bids *service.BidService) *BidHandler {
	return &BidHandler{bids: bids}
}

// bidDTO is the wire representation of a recorded bid.
type bidDTO struct {
	ID              string    `json:"bidId"`
	ListingID       string    `json:"listingId"`
	UserID          string    `json:"userId"`
	Amount          float64   `json:"amount"`
	TransactionHash string    `json:"transactionHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toBidDTO(b domain.Bid) bidDTO {
	return bidDTO{
		ID:              b.ID,
		ListingID:       b.ListingID,
		UserID:          b.UserID,
		Amount:          b.Amount,
		TransactionHash: b.TransactionHash,
		CreatedAt:       b.CreatedAt,
	}
}

// createBidRequest is the payload for POST /api/bid/create.
type createBidRequest struct {
	ListingID       string `json:"listingId"`
	UserID          string `json:"userId"`
	Amount          int64  `json:"amount"`
	TransactionHash string `json:"transactionHash"`
}

// CreateBid handles POST /api/bid/create.
func (h *BidHandler) CreateBid(w http.ResponseWriter, r *http.Request) {
	var req createBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	bid, err := h.bids.Record(r.Context(), service.RecordBidInput{
		ListingID:       req.ListingID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBidDTO(bid))
}

// ListByListing handles GET /api/bid/listing/{id}.
func (h *BidHandler) ListByListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "listing id is required")
		return
	}

	bids, err := h.bids.ListByListing(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]bidDTO, 0, len(bids))
	for _, b := range bids {
		dtos = append(dtos, toBidDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListByUser handles GET /api/bid/user/{id}.
func (h *BidHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	bids, err := h.bids.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]bidDTO, 0, len(bids))
	for _, b := range bids {
		dtos = append(dtos, toBidDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}
