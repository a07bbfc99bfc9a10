package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"listing-api/models"
	"listing-api/utils"
)

// PostgresRepository persists listings and their price history to PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool and pings it until it answers or the
// retry budget is spent.
func OpenPostgres(ctx context.Context, dsn string, retry *utils.RetryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wraps an open connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the listing tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listing (
			id                   BIGSERIAL        PRIMARY KEY,
			created_date         TIMESTAMPTZ      NOT NULL DEFAULT statement_timestamp(),
			updated_date         TIMESTAMPTZ      NOT NULL DEFAULT statement_timestamp(),
			name                 TEXT             NOT NULL,
			description          TEXT             NOT NULL,
			building_type        TEXT             NOT NULL,
			surface_area_m2      DOUBLE PRECISION NOT NULL,
			rooms_count          INTEGER          NOT NULL,
			bedrooms_count       INTEGER          NOT NULL,
			price                DOUBLE PRECISION NOT NULL,
			street_address       TEXT             NOT NULL,
			postal_code          TEXT             NOT NULL,
			city                 TEXT             NOT NULL,
			country              TEXT             NOT NULL,
			contact_phone_number TEXT
		);

		CREATE TABLE IF NOT EXISTS listing_price_history (
			id           BIGSERIAL        PRIMARY KEY,
			listing_id   BIGINT           NOT NULL REFERENCES listing(id) ON DELETE CASCADE,
			price        DOUBLE PRECISION NOT NULL,
			created_date TIMESTAMPTZ      NOT NULL DEFAULT clock_timestamp()
		);

		CREATE INDEX IF NOT EXISTS idx_listing_price_history_listing
			ON listing_price_history(listing_id, created_date, id);
	`)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Create inserts the listing row and its seed price history row in one
// transaction and returns the reloaded listing.
func (r *PostgresRepository) Create(ctx context.Context, listing models.Listing) (models.StoredListing, error) {
	var stored models.StoredListing
	err := r.inTx(ctx, nil, func(tx *sql.Tx) error {
		row := flatten(listing)

		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO listing (
				name, description, building_type, surface_area_m2, rooms_count, bedrooms_count,
				price, street_address, postal_code, city, country, contact_phone_number
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id
		`, row.Name, row.Description, row.BuildingType, row.SurfaceAreaM2, row.RoomsCount, row.BedroomsCount,
			row.Price, row.StreetAddress, row.PostalCode, row.City, row.Country, nullString(row.ContactPhoneNumber),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}

		if err := appendPrice(ctx, tx, id, row.Price); err != nil {
			return err
		}

		stored, err = loadListing(ctx, tx, id)
		if err != nil {
			return err
		}
		return verifyLedger(stored)
	})
	if err != nil {
		return models.StoredListing{}, fmt.Errorf("postgres: create: %w", err)
	}
	return stored, nil
}

// GetByID loads one listing with its full price history.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (models.StoredListing, error) {
	var stored models.StoredListing
	err := r.inTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}, func(tx *sql.Tx) error {
		var err error
		stored, err = loadListing(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.StoredListing{}, fmt.Errorf("postgres: get by id: %w", err)
	}
	return stored, nil
}

// GetAll loads every listing ordered by id, each with its price history.
func (r *PostgresRepository) GetAll(ctx context.Context) ([]models.StoredListing, error) {
	listings := []models.StoredListing{}
	err := r.inTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+listingColumns+` FROM listing ORDER BY id`)
		if err != nil {
			return fmt.Errorf("select listings: %w", err)
		}
		var listingRows []listingRow
		for rows.Next() {
			row, err := scanListing(rows)
			if err != nil {
				rows.Close()
				return err
			}
			listingRows = append(listingRows, row)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		history, err := queryHistory(ctx, tx, `
			SELECT id, listing_id, price, created_date
			FROM listing_price_history
			ORDER BY listing_id, created_date, id
		`)
		if err != nil {
			return err
		}

		byListing := make(map[int64][]priceHistoryRow, len(listingRows))
		for _, h := range history {
			byListing[h.ListingID] = append(byListing[h.ListingID], h)
		}
		for _, row := range listingRows {
			listings = append(listings, toStored(row, byListing[row.ID]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: get all: %w", err)
	}
	return listings, nil
}

// Update overwrites the listing's mutable fields and appends one price history
// row. The listing row is locked first, so concurrent updates of the same id
// commit one after the other and a missing id fails before anything is written.
func (r *PostgresRepository) Update(ctx context.Context, id int64, listing models.Listing) (models.StoredListing, error) {
	var stored models.StoredListing
	err := r.inTx(ctx, nil, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM listing WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFound(id)
		}
		if err != nil {
			return fmt.Errorf("lock listing: %w", err)
		}

		row := flatten(listing)
		_, err = tx.ExecContext(ctx, `
			UPDATE listing SET
				name = $2, description = $3, building_type = $4, surface_area_m2 = $5,
				rooms_count = $6, bedrooms_count = $7, price = $8, street_address = $9,
				postal_code = $10, city = $11, country = $12, contact_phone_number = $13,
				updated_date = statement_timestamp()
			WHERE id = $1
		`, id, row.Name, row.Description, row.BuildingType, row.SurfaceAreaM2, row.RoomsCount,
			row.BedroomsCount, row.Price, row.StreetAddress, row.PostalCode, row.City, row.Country,
			nullString(row.ContactPhoneNumber))
		if err != nil {
			return fmt.Errorf("update listing: %w", err)
		}

		if err := appendPrice(ctx, tx, id, row.Price); err != nil {
			return err
		}

		stored, err = loadListing(ctx, tx, id)
		if err != nil {
			return err
		}
		return verifyLedger(stored)
	})
	if err != nil {
		return models.StoredListing{}, fmt.Errorf("postgres: update: %w", err)
	}
	return stored, nil
}

// inTx runs fn inside a transaction. The transaction is committed only when fn
// returns nil and is rolled back on every other path, including panics.
func (r *PostgresRepository) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const listingColumns = `id, created_date, updated_date, name, description, building_type,
	surface_area_m2, rooms_count, bedrooms_count, price, street_address, postal_code,
	city, country, contact_phone_number`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(s rowScanner) (listingRow, error) {
	var row listingRow
	var phone sql.NullString
	err := s.Scan(
		&row.ID, &row.CreatedDate, &row.UpdatedDate, &row.Name, &row.Description, &row.BuildingType,
		&row.SurfaceAreaM2, &row.RoomsCount, &row.BedroomsCount, &row.Price, &row.StreetAddress,
		&row.PostalCode, &row.City, &row.Country, &phone,
	)
	if err != nil {
		return listingRow{}, err
	}
	if phone.Valid {
		row.ContactPhoneNumber = &phone.String
	}
	return row, nil
}

func loadListing(ctx context.Context, tx *sql.Tx, id int64) (models.StoredListing, error) {
	row, err := scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listing WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredListing{}, models.NotFound(id)
	}
	if err != nil {
		return models.StoredListing{}, fmt.Errorf("select listing: %w", err)
	}

	history, err := queryHistory(ctx, tx, `
		SELECT id, listing_id, price, created_date
		FROM listing_price_history
		WHERE listing_id = $1
		ORDER BY created_date, id
	`, id)
	if err != nil {
		return models.StoredListing{}, err
	}
	return toStored(row, history), nil
}

func queryHistory(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]priceHistoryRow, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select price history: %w", err)
	}
	defer rows.Close()

	var history []priceHistoryRow
	for rows.Next() {
		var h priceHistoryRow
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Price, &h.CreatedDate); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func appendPrice(ctx context.Context, tx *sql.Tx, listingID int64, price float64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO listing_price_history (listing_id, price) VALUES ($1, $2)`,
		listingID, price)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// IsConstraintViolation reports whether err carries a PostgreSQL integrity
// constraint violation (SQLSTATE class 23).
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "23"
}
