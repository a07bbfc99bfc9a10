package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepositoryContract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) ListingRepository {
		return NewMemoryRepository()
	})
}

func TestMemoryRepositoryStampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2023, 1, 19, 8, 50, 3, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	i := 0
	repo := NewMemoryRepository(WithClock(func() time.Time {
		ts := clock[i]
		i++
		return ts
	}))
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleListing(512000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	skewed, err := repo.Update(ctx, created.ID, sampleListing(800000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !skewed.UpdatedDate.Equal(base) {
		t.Errorf("UpdatedDate: got %v, want clamped %v", skewed.UpdatedDate, base)
	}

	final, err := repo.Update(ctx, created.ID, sampleListing(900000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	assertOrdered(t, final.PriceHistory)
	if !final.PriceHistory[2].CreatedDate.Equal(base.Add(time.Minute)) {
		t.Errorf("third entry: got %v", final.PriceHistory[2].CreatedDate)
	}
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, _ := repo.Create(ctx, sampleListing(512000))
	created.PriceHistory[0].Price = 1
	*created.ContactPhoneNumber = "tampered"

	fetched, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.PriceHistory[0].Price != 512000 {
		t.Errorf("history mutated through returned value: %v", fetched.PriceHistory[0].Price)
	}
	if *fetched.ContactPhoneNumber == "tampered" {
		t.Error("phone mutated through returned value")
	}
}
