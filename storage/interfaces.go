package storage

import (
	"context"

	"listing-api/models"
)

// ListingRepository is the contract every listing storage backend must satisfy.
//
// Create and Update write the listing row and one price history row as a
// single atomic unit. GetByID and Update return an error matching
// models.ErrListingNotFound when the id does not resolve.
type ListingRepository interface {
	Create(ctx context.Context, listing models.Listing) (models.StoredListing, error)
	GetByID(ctx context.Context, id int64) (models.StoredListing, error)
	GetAll(ctx context.Context) ([]models.StoredListing, error)
	Update(ctx context.Context, id int64, listing models.Listing) (models.StoredListing, error)
}

// PriceHistoryWriter is the interface for exporting price history.
type PriceHistoryWriter interface {
	WriteHistory(listings []models.StoredListing) error
	Close() error
}
