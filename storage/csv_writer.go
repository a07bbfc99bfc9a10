package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"listing-api/models"
)

// CSVWriter exports listing price history to a CSV file, one row per
// history entry. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"listing_id", "name", "city", "history_id", "price_eur", "created_date",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteHistory appends every history entry of the given listings, keeping
// each listing's entries in storage order.
func (c *CSVWriter) WriteHistory(listings []models.StoredListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		for _, h := range l.PriceHistory {
			row := []string{
				strconv.FormatInt(l.ID, 10),
				l.Name,
				l.PostalAddress.City,
				strconv.FormatInt(h.ID, 10),
				strconv.FormatFloat(h.Price, 'f', 2, 64),
				h.CreatedDate.Format(time.RFC3339Nano),
			}
			if err := c.writer.Write(row); err != nil {
				return fmt.Errorf("csv: write row: %w", err)
			}
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
