package models

import "time"

// PostalAddress is the nested address of a listing. Storage keeps these
// fields flattened onto the listing row.
type PostalAddress struct {
	StreetAddress string `json:"street_address"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	Country       string `json:"country"`
}

// Listing is a validated property for sale as supplied by a caller.
// Identifiers and timestamps are assigned by storage and live on StoredListing.
type Listing struct {
	Name               string        `json:"name"`
	PostalAddress      PostalAddress `json:"postal_address"`
	Description        string        `json:"description"`
	BuildingType       string        `json:"building_type"`
	LatestPriceEUR     float64       `json:"latest_price_eur"`
	SurfaceAreaM2      float64       `json:"surface_area_m2"`
	RoomsCount         int           `json:"rooms_count"`
	BedroomsCount      int           `json:"bedrooms_count"`
	ContactPhoneNumber *string       `json:"contact_phone_number"`
}

// PriceHistoryEntry is one immutable row of a listing's price ledger.
type PriceHistoryEntry struct {
	ID          int64     `json:"id"`
	ListingID   int64     `json:"listing_id"`
	Price       float64   `json:"price"`
	CreatedDate time.Time `json:"created_date"`
}

// StoredListing is the materialized listing returned by every repository
// operation: the nested listing shape plus storage-assigned fields and the
// full price history, oldest entry first.
type StoredListing struct {
	ID int64 `json:"id"`
	Listing
	CreatedDate  time.Time           `json:"created_date"`
	UpdatedDate  time.Time           `json:"updated_date"`
	PriceHistory []PriceHistoryEntry `json:"price_history"`
}

// PricePoint is the caller-facing projection of a price history entry.
type PricePoint struct {
	PriceEUR    float64   `json:"price_eur"`
	CreatedDate time.Time `json:"created_date"`
}

// CatalogReport holds the computed analytics over the stored catalog.
type CatalogReport struct {
	TotalListings   int
	AveragePrice    float64
	MinPrice        float64
	MaxPrice        float64
	MostExpensive   *StoredListing
	MostRepriced    []*StoredListing
	ListingsByCity  map[string]int
	TotalPriceMoves int
}
