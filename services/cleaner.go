package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"listing-api/models"
	"listing-api/storage"
	"listing-api/utils"
)

var (
	// numberRegexp matches an amount with optional comma thousands separators
	numberRegexp = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
)

var (
	textColumns = []string{"name", "description", "building_type"}

	addressColumns = []string{"street_address", "postal_code", "city", "country"}
)

// CleanListing is an import row that passed validation.
type CleanListing struct {
	Line    int
	Listing models.Listing
}

// RowRejection records why an import row was dropped.
type RowRejection struct {
	Line int
	Err  error
}

// Cleaner turns raw CSV rows into validated listings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean normalises every row and validates it through models.NewListing.
// Rows that repeat an earlier row's name and full address are skipped.
func (c *Cleaner) Clean(raw []storage.RawListingRow) ([]CleanListing, []RowRejection) {
	seen := make(map[string]struct{})
	result := make([]CleanListing, 0, len(raw))
	var rejected []RowRejection

	for _, r := range raw {
		fields := c.normalise(r.Fields)

		listing, err := models.NewListing(fields)
		if err != nil {
			c.logger.Warn("[cleaner] Dropping line %d: %v", r.Line, err)
			rejected = append(rejected, RowRejection{Line: r.Line, Err: err})
			continue
		}

		key := dedupeKey(listing)
		if _, dup := seen[key]; dup {
			c.logger.Debug("[cleaner] Duplicate listing skipped on line %d: %s", r.Line, listing.Name)
			continue
		}
		seen[key] = struct{}{}

		result = append(result, CleanListing{Line: r.Line, Listing: listing})
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (rejected %d)",
		len(raw), len(result), len(rejected))
	return result, rejected
}

// normalise builds the loosely typed field map models.NewListing expects.
// Blank cells are left out so validation reports them as missing; cells that
// do not parse are passed through as strings so validation reports the type.
func (c *Cleaner) normalise(raw map[string]string) map[string]any {
	fields := make(map[string]any)

	for _, col := range textColumns {
		if v := normaliseText(raw[col]); v != "" {
			fields[col] = v
		}
	}

	address := make(map[string]any)
	for _, col := range addressColumns {
		if v := normaliseText(raw[col]); v != "" {
			address[col] = v
		}
	}
	fields["postal_address"] = address

	price := raw["latest_price_eur"]
	if strings.TrimSpace(price) == "" {
		price = raw["price"]
	}
	setNumber(fields, "latest_price_eur", price, c.parseNumber)
	setNumber(fields, "surface_area_m2", raw["surface_area_m2"], c.parseNumber)
	setNumber(fields, "rooms_count", raw["rooms_count"], parseCount)
	setNumber(fields, "bedrooms_count", raw["bedrooms_count"], parseCount)

	if phone := strings.TrimSpace(raw["contact_phone_number"]); phone != "" {
		fields["contact_phone_number"] = phone
	}
	return fields
}

func setNumber(fields map[string]any, key, raw string, parse func(string) (float64, bool)) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if v, ok := parse(raw); ok {
		fields[key] = v
		return
	}
	fields[key] = raw
}

// parseNumber extracts a decimal amount from strings such as "€512,000.00",
// "512 000 €" or "85.5 m²". Commas are thousands separators only. Negative
// amounts and cells with digits outside the amount ("1.5e6", "512.000,00")
// are refused so validation reports the field.
func (c *Cleaner) parseNumber(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if strings.ContainsAny(cleaned, "-\u2212") {
		return 0, false
	}

	loc := numberRegexp.FindStringIndex(cleaned)
	if loc == nil {
		return 0, false
	}
	if strings.ContainsAny(cleaned[loc[1]:], "0123456789") {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(cleaned[loc[0]:loc[1]], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseCount(raw string) (float64, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return float64(n), true
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dedupeKey(l models.Listing) string {
	a := l.PostalAddress
	return strings.ToLower(strings.Join([]string{l.Name, a.StreetAddress, a.PostalCode, a.City, a.Country}, "|"))
}
