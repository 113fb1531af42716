package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
	"github.com/bidsphere/bidsphere/internal/service"
)

// ListingHandler serves listing endpoints.
type ListingHandler struct {
	listings *service.ListingService
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings *service.ListingService) *ListingHandler {
	return &ListingHandler{listings: listings}
}

// listingDTO is the wire representation of a listing.
type listingDTO struct {
	ID            string          `json:"listingId"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	SellerID      string          `json:"sellerId"`
	StartingPrice float64         `json:"startingPrice"`
	LatestBid     *bidSnapshotDTO `json:"latestBid,omitempty"`
	EndDate       time.Time       `json:"endDate"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type bidSnapshotDTO struct {
	BidPrice float64   `json:"bidPrice"`
	BidDate  time.Time `json:"bidDate"`
}

func toListingDTO(l domain.Listing) listingDTO {
	dto := listingDTO{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		SellerID:      l.SellerID,
		StartingPrice: l.StartingPrice,
		EndDate:       l.EndDate,
		Status:        string(l.Status),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.LatestBid != nil {
		dto.LatestBid = &bidSnapshotDTO{
			BidPrice: l.LatestBid.BidPrice,
			BidDate:  l.LatestBid.BidDate,
		}
	}
	return dto
}

// GetListing handles GET /api/listing/{id}.
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "listing id is required")
		return
	}

	listing, err := h.listings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingDTO(listing))
}

// ListListings handles GET /api/listings.
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.ListActive(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]listingDTO, 0, len(listings))
	for _, l := range listings {
		dtos = append(dtos, toListingDTO(l))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// createListingRequest is the payload for POST /api/listing/create.
type createListingRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	SellerID      string    `json:"sellerId"`
	StartingPrice float64   `json:"startingPrice"`
	EndDate       time.Time `json:"endDate"`
}

// CreateListing handles POST /api/listing/create.
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	listing, err := h.listings.Create(r.Context(), service.CreateListingInput{
		Title:         req.Title,
		Description:   req.Description,
		SellerID:      req.SellerID,
		StartingPrice: req.StartingPrice,
		EndDate:       req.EndDate,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toListingDTO(listing))
}
