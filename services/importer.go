package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"listing-api/models"
	"listing-api/storage"
	"listing-api/utils"
)

// ImportResult summarises one import run.
type ImportResult struct {
	Read      int
	Persisted []models.StoredListing
	Rejected  []RowRejection
}

// Importer loads listings from a CSV file and persists each one through
// PersistListing on a bounded worker pool.
type Importer struct {
	cleaner     *Cleaner
	persist     *PersistListing
	logger      *utils.Logger
	concurrency int
	rateLimitMs int
}

func NewImporter(persist *PersistListing, cleaner *Cleaner, logger *utils.Logger, concurrency, rateLimitMs int) *Importer {
	return &Importer{
		cleaner:     cleaner,
		persist:     persist,
		logger:      logger,
		concurrency: concurrency,
		rateLimitMs: rateLimitMs,
	}
}

// ImportFile reads path and imports its rows.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	rows, err := storage.ReadListingCSV(path)
	if err != nil {
		return nil, err
	}
	im.logger.Info("[import] Read %d rows from %s", len(rows), path)
	return im.Import(ctx, rows)
}

// Import validates rows and persists the valid ones. Invalid rows are
// reported in the result. The first storage error stops the run: listings
// already committed stay committed, pending ones are not attempted.
func (im *Importer) Import(ctx context.Context, rows []storage.RawListingRow) (*ImportResult, error) {
	cleaned, rejected := im.cleaner.Clean(rows)
	result := &ImportResult{Read: len(rows), Rejected: rejected}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	pool := utils.NewWorkerPool(im.concurrency, im.rateLimitMs)
	for _, c := range cleaned {
		if ctx.Err() != nil {
			break
		}
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			stored, err := im.persist.Perform(ctx, c.Listing)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("import line %d: %w", c.Line, err)
					cancel()
				}
				return
			}
			result.Persisted = append(result.Persisted, stored)
		})
	}
	pool.Wait()

	sort.Slice(result.Persisted, func(i, j int) bool {
		return result.Persisted[i].ID < result.Persisted[j].ID
	})

	if firstErr != nil {
		im.logger.Error("[import] Aborted after %d listings: %v", len(result.Persisted), firstErr)
		return result, firstErr
	}
	if err := ctx.Err(); err != nil && len(result.Persisted) < len(cleaned) {
		return result, err
	}

	im.logger.Info("[import] Persisted %d listings, rejected %d rows", len(result.Persisted), len(result.Rejected))
	return result, nil
}
