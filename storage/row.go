package storage

import (
	"errors"
	"fmt"
	"time"

	"listing-api/models"
)

// listingRow is the flattened shape of the listing table: address fields
// hoisted to the top level and the current price stored as "price".
type listingRow struct {
	ID                 int64
	CreatedDate        time.Time
	UpdatedDate        time.Time
	Name               string
	Description        string
	BuildingType       string
	SurfaceAreaM2      float64
	RoomsCount         int
	BedroomsCount      int
	Price              float64
	StreetAddress      string
	PostalCode         string
	City               string
	Country            string
	ContactPhoneNumber *string
}

type priceHistoryRow struct {
	ID          int64
	ListingID   int64
	Price       float64
	CreatedDate time.Time
}

// flatten maps a listing onto the mutable columns of a listing row.
func flatten(l models.Listing) listingRow {
	return listingRow{
		Name:               l.Name,
		Description:        l.Description,
		BuildingType:       l.BuildingType,
		SurfaceAreaM2:      l.SurfaceAreaM2,
		RoomsCount:         l.RoomsCount,
		BedroomsCount:      l.BedroomsCount,
		Price:              l.LatestPriceEUR,
		StreetAddress:      l.PostalAddress.StreetAddress,
		PostalCode:         l.PostalAddress.PostalCode,
		City:               l.PostalAddress.City,
		Country:            l.PostalAddress.Country,
		ContactPhoneNumber: copyString(l.ContactPhoneNumber),
	}
}

// unflatten is the inverse of flatten.
func unflatten(r listingRow) models.Listing {
	return models.Listing{
		Name: r.Name,
		PostalAddress: models.PostalAddress{
			StreetAddress: r.StreetAddress,
			PostalCode:    r.PostalCode,
			City:          r.City,
			Country:       r.Country,
		},
		Description:        r.Description,
		BuildingType:       r.BuildingType,
		LatestPriceEUR:     r.Price,
		SurfaceAreaM2:      r.SurfaceAreaM2,
		RoomsCount:         r.RoomsCount,
		BedroomsCount:      r.BedroomsCount,
		ContactPhoneNumber: copyString(r.ContactPhoneNumber),
	}
}

// toStored assembles the external representation from a row and its history.
func toStored(r listingRow, history []priceHistoryRow) models.StoredListing {
	entries := make([]models.PriceHistoryEntry, 0, len(history))
	for _, h := range history {
		entries = append(entries, models.PriceHistoryEntry{
			ID:          h.ID,
			ListingID:   h.ListingID,
			Price:       h.Price,
			CreatedDate: h.CreatedDate.UTC(),
		})
	}
	return models.StoredListing{
		ID:           r.ID,
		Listing:      unflatten(r),
		CreatedDate:  r.CreatedDate.UTC(),
		UpdatedDate:  r.UpdatedDate.UTC(),
		PriceHistory: entries,
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ErrLedgerMismatch reports a listing whose current price disagrees with its
// newest price history entry. Writers check it before committing.
var ErrLedgerMismatch = errors.New("listing price does not match latest price history entry")

func verifyLedger(s models.StoredListing) error {
	n := len(s.PriceHistory)
	if n == 0 {
		return fmt.Errorf("listing %d: %w: history is empty", s.ID, ErrLedgerMismatch)
	}
	if last := s.PriceHistory[n-1].Price; last != s.LatestPriceEUR {
		return fmt.Errorf("listing %d: %w: price %v, history %v", s.ID, ErrLedgerMismatch, s.LatestPriceEUR, last)
	}
	return nil
}
