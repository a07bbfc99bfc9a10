package services

import (
	"context"

	"listing-api/models"
	"listing-api/storage"
)

// PersistListing stores a brand-new listing together with its seed price.
type PersistListing struct {
	repo storage.ListingRepository
}

func NewPersistListing(repo storage.ListingRepository) *PersistListing {
	return &PersistListing{repo: repo}
}

func (u *PersistListing) Perform(ctx context.Context, listing models.Listing) (models.StoredListing, error) {
	return u.repo.Create(ctx, listing)
}

// UpdateListing overwrites a listing and records its new price.
type UpdateListing struct {
	repo storage.ListingRepository
}

func NewUpdateListing(repo storage.ListingRepository) *UpdateListing {
	return &UpdateListing{repo: repo}
}

func (u *UpdateListing) Perform(ctx context.Context, id int64, listing models.Listing) (models.StoredListing, error) {
	return u.repo.Update(ctx, id, listing)
}

// RetrieveListings returns every stored listing.
type RetrieveListings struct {
	repo storage.ListingRepository
}

func NewRetrieveListings(repo storage.ListingRepository) *RetrieveListings {
	return &RetrieveListings{repo: repo}
}

func (u *RetrieveListings) Perform(ctx context.Context) ([]models.StoredListing, error) {
	return u.repo.GetAll(ctx)
}

// RetrieveListingsPriceHistory returns the prices a listing has had, oldest first.
type RetrieveListingsPriceHistory struct {
	repo storage.ListingRepository
}

func NewRetrieveListingsPriceHistory(repo storage.ListingRepository) *RetrieveListingsPriceHistory {
	return &RetrieveListingsPriceHistory{repo: repo}
}

func (u *RetrieveListingsPriceHistory) Perform(ctx context.Context, id int64) ([]models.PricePoint, error) {
	listing, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(listing.PriceHistory))
	for _, h := range listing.PriceHistory {
		points = append(points, models.PricePoint{PriceEUR: h.Price, CreatedDate: h.CreatedDate})
	}
	return points, nil
}
