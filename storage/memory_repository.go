package storage

import (
	"context"
	"sync"
	"time"

	"listing-api/models"
	"listing-api/utils"
)

// MemoryRepository is a thread-safe in-process ListingRepository. Every write
// stages its listing row and history row first and applies both under a
// single lock, so readers never observe one without the other.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[int64]listingRow
	history  map[int64][]priceHistoryRow

	nextListingID int64
	nextHistoryID int64
	lastStamp     time.Time

	writers *utils.KeyedMutex
	now     func() time.Time
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithClock replaces the clock used to stamp rows.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) { r.now = now }
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		listings: make(map[int64]listingRow),
		history:  make(map[int64][]priceHistoryRow),
		writers:  utils.NewKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRepository) Create(ctx context.Context, listing models.Listing) (models.StoredListing, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredListing{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.stamp()
	row := flatten(listing)
	row.ID = r.nextListingID + 1
	row.CreatedDate = stamp
	row.UpdatedDate = stamp
	seed := priceHistoryRow{ID: r.nextHistoryID + 1, ListingID: row.ID, Price: row.Price, CreatedDate: stamp}

	stored := toStored(row, []priceHistoryRow{seed})
	if err := verifyLedger(stored); err != nil {
		return models.StoredListing{}, err
	}

	r.nextListingID++
	r.nextHistoryID++
	r.listings[row.ID] = row
	r.history[row.ID] = []priceHistoryRow{seed}
	return stored, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (models.StoredListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.listings[id]
	if !ok {
		return models.StoredListing{}, models.NotFound(id)
	}
	return toStored(row, r.history[id]), nil
}

// GetAll returns every listing ordered by id.
func (r *MemoryRepository) GetAll(_ context.Context) ([]models.StoredListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.StoredListing, 0, len(r.listings))
	for id := int64(1); id <= r.nextListingID; id++ {
		row, ok := r.listings[id]
		if !ok {
			continue
		}
		out = append(out, toStored(row, r.history[id]))
	}
	return out, nil
}

// Update holds the per-listing writer lock for its whole duration, so two
// updates of the same id apply strictly one after the other.
func (r *MemoryRepository) Update(ctx context.Context, id int64, listing models.Listing) (models.StoredListing, error) {
	unlock := r.writers.Lock(id)
	defer unlock()

	r.mu.RLock()
	current, ok := r.listings[id]
	r.mu.RUnlock()
	if !ok {
		return models.StoredListing{}, models.NotFound(id)
	}

	if err := ctx.Err(); err != nil {
		return models.StoredListing{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.stamp()
	row := flatten(listing)
	row.ID = id
	row.CreatedDate = current.CreatedDate
	row.UpdatedDate = stamp
	entry := priceHistoryRow{ID: r.nextHistoryID + 1, ListingID: id, Price: row.Price, CreatedDate: stamp}

	prior := r.history[id]
	history := make([]priceHistoryRow, len(prior), len(prior)+1)
	copy(history, prior)
	history = append(history, entry)

	stored := toStored(row, history)
	if err := verifyLedger(stored); err != nil {
		return models.StoredListing{}, err
	}

	r.nextHistoryID++
	r.listings[id] = row
	r.history[id] = history
	return stored, nil
}

// stamp returns a timestamp that never goes backwards. Callers hold r.mu.
func (r *MemoryRepository) stamp() time.Time {
	t := r.now().UTC()
	if t.Before(r.lastStamp) {
		t = r.lastStamp
	}
	r.lastStamp = t
	return t
}
