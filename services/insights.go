package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"listing-api/models"
	"listing-api/utils"
)

const topRepricedLimit = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarises the catalog: current price statistics, listings per city
// and the listings whose price changed most often.
func (s *InsightService) Generate(listings []models.StoredListing) *models.CatalogReport {
	report := &models.CatalogReport{
		ListingsByCity: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var total float64
	var repriced []*models.StoredListing
	for i := range listings {
		l := &listings[i]

		total += l.LatestPriceEUR
		if report.MostExpensive == nil || l.LatestPriceEUR < report.MinPrice {
			report.MinPrice = l.LatestPriceEUR
		}
		if report.MostExpensive == nil || l.LatestPriceEUR > report.MaxPrice {
			report.MaxPrice = l.LatestPriceEUR
			report.MostExpensive = l
		}

		if city := l.PostalAddress.City; city != "" {
			report.ListingsByCity[city]++
		}

		if moves := len(l.PriceHistory) - 1; moves > 0 {
			report.TotalPriceMoves += moves
			repriced = append(repriced, l)
		}
	}

	report.AveragePrice = round2(total / float64(len(listings)))
	report.MinPrice = round2(report.MinPrice)
	report.MaxPrice = round2(report.MaxPrice)

	sort.SliceStable(repriced, func(i, j int) bool {
		return len(repriced[i].PriceHistory) > len(repriced[j].PriceHistory)
	})
	if len(repriced) > topRepricedLimit {
		repriced = repriced[:topRepricedLimit]
	}
	report.MostRepriced = repriced

	s.logger.Debug("[insights] Report built over %d listings (%d price moves)",
		report.TotalListings, report.TotalPriceMoves)
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.CatalogReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  LISTING CATALOG REPORT\n")
	fmt.Fprintf(w, "%s\n\n", sep)

	fmt.Fprintf(w, "  Overview\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings    : %d\n", r.TotalListings)
	fmt.Fprintf(w, "  Recorded repricing: %d\n", r.TotalPriceMoves)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Current Prices (EUR)\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.TotalListings > 0 {
		fmt.Fprintf(w, "  Average price : %.2f\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : %.2f\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : %.2f\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No listings stored\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most Expensive Listing\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  #%d %s\n", r.MostExpensive.ID, truncate(r.MostExpensive.Name, 46))
		fmt.Fprintf(w, "  City  : %s\n", r.MostExpensive.PostalAddress.City)
		fmt.Fprintf(w, "  Price : %.2f\n", r.MostExpensive.LatestPriceEUR)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "  Most Repriced Listings\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.MostRepriced) == 0 {
		fmt.Fprintf(w, "  No price changes recorded\n")
	} else {
		for i, l := range r.MostRepriced {
			first := l.PriceHistory[0].Price
			fmt.Fprintf(w, "  %d. %-34s %2d changes  %.2f → %.2f\n",
				i+1, truncate(l.Name, 32), len(l.PriceHistory)-1, first, l.LatestPriceEUR)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Listings by City\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByCity) == 0 {
		fmt.Fprintf(w, "  No city data\n")
	} else {
		type cityCount struct {
			city  string
			count int
		}
		var cities []cityCount
		for city, cnt := range r.ListingsByCity {
			cities = append(cities, cityCount{city, cnt})
		}
		sort.Slice(cities, func(i, j int) bool {
			if cities[i].count != cities[j].count {
				return cities[i].count > cities[j].count
			}
			return cities[i].city < cities[j].city
		})
		for _, cc := range cities {
			bar := strings.Repeat("█", cc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(cc.city, 28), bar, cc.count)
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
