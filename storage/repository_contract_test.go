package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"listing-api/models"
)

// runRepositoryContract exercises the behaviour every ListingRepository must
// share. newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) ListingRepository) {
	t.Run("create seeds one history entry", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		stored, err := repo.Create(ctx, sampleListing(512000))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if stored.ID == 0 {
			t.Fatal("Create: id not assigned")
		}
		if stored.CreatedDate.IsZero() || stored.UpdatedDate.IsZero() {
			t.Errorf("Create: timestamps not assigned: %+v", stored)
		}
		if len(stored.PriceHistory) != 1 {
			t.Fatalf("history: got %d entries, want 1", len(stored.PriceHistory))
		}
		h := stored.PriceHistory[0]
		if h.Price != stored.LatestPriceEUR || h.Price != 512000 {
			t.Errorf("seed price: got %v, listing %v", h.Price, stored.LatestPriceEUR)
		}
		if h.ListingID != stored.ID {
			t.Errorf("seed listing id: got %d, want %d", h.ListingID, stored.ID)
		}
		if stored.PostalAddress.City != "Paris" || stored.ContactPhoneNumber == nil {
			t.Errorf("fields not round-tripped: %+v", stored.Listing)
		}
	})

	t.Run("update appends one entry per call", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, sampleListing(512000))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		prices := []float64{800000, 750000, 760000}
		var last models.StoredListing
		for i, p := range prices {
			l := sampleListing(p)
			l.Name = "My new name"
			last, err = repo.Update(ctx, created.ID, l)
			if err != nil {
				t.Fatalf("Update #%d: %v", i+1, err)
			}
			if len(last.PriceHistory) != i+2 {
				t.Fatalf("after update #%d: history has %d entries, want %d", i+1, len(last.PriceHistory), i+2)
			}
		}

		if last.LatestPriceEUR != 760000 || last.PriceHistory[len(last.PriceHistory)-1].Price != 760000 {
			t.Errorf("latest price: listing %v, history %+v", last.LatestPriceEUR, last.PriceHistory)
		}
		if last.Name != "My new name" {
			t.Errorf("name not overwritten: %q", last.Name)
		}
		if !last.CreatedDate.Equal(created.CreatedDate) {
			t.Errorf("created date changed: %v -> %v", created.CreatedDate, last.CreatedDate)
		}
		if last.PriceHistory[0].ID != created.PriceHistory[0].ID || last.PriceHistory[0].Price != 512000 {
			t.Errorf("seed entry mutated: %+v", last.PriceHistory[0])
		}

		fetched, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		assertOrdered(t, fetched.PriceHistory)
		if len(fetched.PriceHistory) != 4 {
			t.Errorf("GetByID history: got %d entries, want 4", len(fetched.PriceHistory))
		}
	})

	t.Run("price history scenario", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, sampleListing(512000))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		updated, err := repo.Update(ctx, created.ID, sampleListing(800000))
		if err != nil {
			t.Fatalf("Update: %v", err)
		}

		if len(updated.PriceHistory) != 2 {
			t.Fatalf("history: got %d entries, want 2", len(updated.PriceHistory))
		}
		if updated.PriceHistory[0].Price != 512000 || updated.PriceHistory[1].Price != 800000 {
			t.Errorf("history: got %+v", updated.PriceHistory)
		}
		if updated.LatestPriceEUR != 800000 {
			t.Errorf("latest price: got %v, want 800000", updated.LatestPriceEUR)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if _, err := repo.GetByID(ctx, 987654); !errors.Is(err, models.ErrListingNotFound) {
			t.Errorf("GetByID: expected ErrListingNotFound, got %v", err)
		}
		if _, err := repo.Update(ctx, 987654, sampleListing(1)); !errors.Is(err, models.ErrListingNotFound) {
			t.Errorf("Update: expected ErrListingNotFound, got %v", err)
		}

		all, err := repo.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("failed update left %d listings behind", len(all))
		}
	})

	t.Run("get all", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		all, err := repo.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll on empty repo: %v", err)
		}
		if all == nil || len(all) != 0 {
			t.Fatalf("GetAll on empty repo: got %#v, want empty slice", all)
		}

		a, _ := repo.Create(ctx, sampleListing(100))
		b, _ := repo.Create(ctx, sampleListing(200))
		if _, err := repo.Update(ctx, a.ID, sampleListing(150)); err != nil {
			t.Fatalf("Update: %v", err)
		}

		all, err = repo.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 2 || all[0].ID != a.ID || all[1].ID != b.ID {
			t.Fatalf("GetAll: unexpected listings %+v", all)
		}
		if len(all[0].PriceHistory) != 2 || len(all[1].PriceHistory) != 1 {
			t.Errorf("GetAll history sizes: %d, %d", len(all[0].PriceHistory), len(all[1].PriceHistory))
		}
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := repo.Create(ctx, sampleListing(1)); err == nil {
			t.Fatal("Create with cancelled context: expected error")
		}
		all, err := repo.GetAll(context.Background())
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("cancelled create persisted %d listings", len(all))
		}
	})

	t.Run("concurrent updates keep price and ledger in step", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, sampleListing(1))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		const n = 20
		var mu sync.Mutex
		seen := make(map[float64]bool)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			price := float64(1000 + i)
			g.Go(func() error {
				_, err := repo.Update(gctx, created.ID, sampleListing(price))
				if err == nil {
					mu.Lock()
					seen[price] = true
					mu.Unlock()
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent Update: %v", err)
		}

		final, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if len(final.PriceHistory) != n+1 {
			t.Fatalf("history: got %d entries, want %d", len(final.PriceHistory), n+1)
		}
		assertOrdered(t, final.PriceHistory)
		if last := final.PriceHistory[n].Price; last != final.LatestPriceEUR {
			t.Errorf("latest price %v does not match newest history entry %v", final.LatestPriceEUR, last)
		}
		for _, h := range final.PriceHistory[1:] {
			if !seen[h.Price] {
				t.Errorf("unexpected history price %v", h.Price)
			}
		}
	})
}

func assertOrdered(t *testing.T, history []models.PriceHistoryEntry) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if cur.CreatedDate.Before(prev.CreatedDate) {
			t.Errorf("history[%d] created %v before history[%d] %v", i, cur.CreatedDate, i-1, prev.CreatedDate)
		}
		if cur.ID <= prev.ID {
			t.Errorf("history[%d] id %d not after history[%d] id %d", i, cur.ID, i-1, prev.ID)
		}
	}
}
