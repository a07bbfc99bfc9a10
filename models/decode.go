package models

import (
	"encoding/json"
	"math"
)

// NewListing builds a Listing from loosely typed input, such as a JSON body
// decoded into a map. Every field except contact_phone_number is required;
// the first missing or mistyped field is reported as a *ValidationError.
func NewListing(fields map[string]any) (Listing, error) {
	var l Listing
	var err error

	if l.Name, err = requireString(fields, "name", "name"); err != nil {
		return Listing{}, err
	}

	rawAddr, ok := fields["postal_address"]
	if !ok || rawAddr == nil {
		return Listing{}, &ValidationError{Field: "postal_address", Reason: "field required"}
	}
	addr, ok := rawAddr.(map[string]any)
	if !ok {
		return Listing{}, &ValidationError{Field: "postal_address", Reason: "expected object"}
	}
	if l.PostalAddress.StreetAddress, err = requireString(addr, "street_address", "postal_address.street_address"); err != nil {
		return Listing{}, err
	}
	if l.PostalAddress.PostalCode, err = requireString(addr, "postal_code", "postal_address.postal_code"); err != nil {
		return Listing{}, err
	}
	if l.PostalAddress.City, err = requireString(addr, "city", "postal_address.city"); err != nil {
		return Listing{}, err
	}
	if l.PostalAddress.Country, err = requireString(addr, "country", "postal_address.country"); err != nil {
		return Listing{}, err
	}

	if l.Description, err = requireString(fields, "description", "description"); err != nil {
		return Listing{}, err
	}
	if l.BuildingType, err = requireString(fields, "building_type", "building_type"); err != nil {
		return Listing{}, err
	}
	if l.LatestPriceEUR, err = requireNumber(fields, "latest_price_eur"); err != nil {
		return Listing{}, err
	}
	if l.SurfaceAreaM2, err = requireNumber(fields, "surface_area_m2"); err != nil {
		return Listing{}, err
	}
	if l.RoomsCount, err = requireInt(fields, "rooms_count"); err != nil {
		return Listing{}, err
	}
	if l.BedroomsCount, err = requireInt(fields, "bedrooms_count"); err != nil {
		return Listing{}, err
	}

	switch v := fields["contact_phone_number"].(type) {
	case nil:
	case string:
		phone := v
		l.ContactPhoneNumber = &phone
	default:
		return Listing{}, &ValidationError{Field: "contact_phone_number", Reason: "expected string"}
	}

	return l, nil
}

func requireString(fields map[string]any, key, name string) (string, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", &ValidationError{Field: name, Reason: "field required"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Field: name, Reason: "expected string"}
	}
	return s, nil
}

func requireNumber(fields map[string]any, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, &ValidationError{Field: key, Reason: "field required"}
	}
	f, ok := toFloat(raw)
	if !ok {
		return 0, &ValidationError{Field: key, Reason: "expected number"}
	}
	return f, nil
}

func requireInt(fields map[string]any, key string) (int, error) {
	f, err := requireNumber(fields, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &ValidationError{Field: key, Reason: "expected integer"}
	}
	return int(f), nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
