package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"

	"listing-api/utils"
)

// openTestDB connects to TEST_POSTGRES_DSN and skips the test when it is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run PostgreSQL integration tests")
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, Logger: utils.NewNopLogger()}
	db, err := OpenPostgres(context.Background(), dsn, retry)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func freshPostgresRepository(t *testing.T, db *sql.DB) *PostgresRepository {
	t.Helper()
	ctx := context.Background()
	repo := NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE listing RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return repo
}

func TestPostgresRepositoryContract(t *testing.T) {
	db := openTestDB(t)
	runRepositoryContract(t, func(t *testing.T) ListingRepository {
		return freshPostgresRepository(t, db)
	})
}

func TestPostgresRepositoryCascadesHistory(t *testing.T) {
	db := openTestDB(t)
	repo := freshPostgresRepository(t, db)
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleListing(512000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Update(ctx, created.ID, sampleListing(800000)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM listing WHERE id = $1`, created.ID); err != nil {
		t.Fatalf("delete listing: %v", err)
	}
	var left int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listing_price_history WHERE listing_id = $1`, created.ID).Scan(&left); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if left != 0 {
		t.Errorf("history rows left after delete: %d", left)
	}
}

func TestPostgresRepositoryHistoryIsAppendOnly(t *testing.T) {
	db := openTestDB(t)
	repo := freshPostgresRepository(t, db)
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleListing(512000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seed := created.PriceHistory[0]

	updated, err := repo.Update(ctx, created.ID, sampleListing(800000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := updated.PriceHistory[0]; got.ID != seed.ID || got.Price != seed.Price || !got.CreatedDate.Equal(seed.CreatedDate) {
		t.Errorf("seed entry changed: %+v -> %+v", seed, got)
	}
	if updated.UpdatedDate.Before(created.UpdatedDate) {
		t.Errorf("updated date went backwards: %v -> %v", created.UpdatedDate, updated.UpdatedDate)
	}
}

func TestIsConstraintViolation(t *testing.T) {
	fk := &pq.Error{Code: "23503"}
	if !IsConstraintViolation(fk) {
		t.Error("foreign key violation not classified")
	}
	if IsConstraintViolation(&pq.Error{Code: "40001"}) {
		t.Error("serialization failure classified as constraint violation")
	}
	if !IsConstraintViolation(fmt.Errorf("postgres: create: %w", fk)) {
		t.Error("wrapped violation not classified")
	}
	if IsConstraintViolation(errors.New("boom")) {
		t.Error("plain error classified as constraint violation")
	}
}

// failHistoryInserts makes every insert into listing_price_history raise, so a
// write fails after its listing row has already been written.
func failHistoryInserts(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`CREATE OR REPLACE FUNCTION reject_price_history() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'price history insert rejected';
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS reject_price_history ON listing_price_history`,
		`CREATE TRIGGER reject_price_history BEFORE INSERT ON listing_price_history
			FOR EACH ROW EXECUTE FUNCTION reject_price_history()`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("install trigger: %v", err)
		}
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DROP TRIGGER IF EXISTS reject_price_history ON listing_price_history`)
		_, _ = db.ExecContext(ctx, `DROP FUNCTION IF EXISTS reject_price_history()`)
	})
}

func TestPostgresRepositoryCreateRollsBackWithoutHistory(t *testing.T) {
	db := openTestDB(t)
	repo := freshPostgresRepository(t, db)
	ctx := context.Background()
	failHistoryInserts(t, db)

	if _, err := repo.Create(ctx, sampleListing(512000)); err == nil {
		t.Fatal("Create succeeded although the history insert failed")
	}

	var listings int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listing`).Scan(&listings); err != nil {
		t.Fatalf("count listings: %v", err)
	}
	if listings != 0 {
		t.Errorf("listing rows left behind: %d", listings)
	}
}

func TestPostgresRepositoryUpdateRollsBackWithoutHistory(t *testing.T) {
	db := openTestDB(t)
	repo := freshPostgresRepository(t, db)
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleListing(512000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	failHistoryInserts(t, db)

	changed := sampleListing(800000)
	changed.Name = "Renamed"
	if _, err := repo.Update(ctx, created.ID, changed); err == nil {
		t.Fatal("Update succeeded although the history insert failed")
	}

	var (
		name    string
		price   float64
		updated time.Time
	)
	err = db.QueryRowContext(ctx, `SELECT name, price, updated_date FROM listing WHERE id = $1`, created.ID).
		Scan(&name, &price, &updated)
	if err != nil {
		t.Fatalf("select listing: %v", err)
	}
	if name != created.Name || price != 512000 || !updated.Equal(created.UpdatedDate) {
		t.Errorf("listing changed by failed update: name=%q price=%v updated=%v", name, price, updated)
	}

	var entries int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listing_price_history WHERE listing_id = $1`, created.ID).Scan(&entries); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if entries != 1 {
		t.Errorf("history entries: got %d, want 1", entries)
	}
}
