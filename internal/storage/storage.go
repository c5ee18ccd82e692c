// Package storage provides SQLite-backed persistence for the comparable
// listing cache and the estimate history.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

// ErrEstimateNotFound is returned by GetEstimate for an unknown ID.
var ErrEstimateNotFound = errors.New("estimate not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db           *sql.DB
	maxEstimates int
	now          func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/resaleoracle/data.db.
func New(maxEstimates int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "resaleoracle", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxEstimates: maxEstimates, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listing_cache (
			cache_key   TEXT PRIMARY KEY,
			listings    TEXT NOT NULL,
			fetched_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS estimates (
			id                 TEXT PRIMARY KEY,
			brand              TEXT NOT NULL,
			item_type          TEXT NOT NULL,
			size               TEXT NOT NULL,
			condition          TEXT NOT NULL,
			sale_speed         TEXT NOT NULL,
			suggested_price    REAL NOT NULL,
			price_range        TEXT NOT NULL,
			market_position    TEXT NOT NULL,
			confidence_level   REAL NOT NULL,
			vision_confidence  REAL NOT NULL,
			overall_confidence REAL NOT NULL,
			sample_size        INTEGER NOT NULL,
			listings_found     INTEGER NOT NULL,
			origin             TEXT NOT NULL,
			used_fallback      INTEGER NOT NULL DEFAULT 0,
			summary            TEXT,
			distribution       TEXT NOT NULL,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetCachedListings returns the listings cached under key if they are
// younger than maxAge.
func (s *Storage) GetCachedListings(key string, maxAge time.Duration) ([]models.ComparableListing, bool, error) {
	var payload string
	var fetchedAtNano int64
	err := s.db.QueryRow(`SELECT listings, fetched_at FROM listing_cache WHERE cache_key = ?`, key).
		Scan(&payload, &fetchedAtNano)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if s.now().Sub(time.Unix(0, fetchedAtNano)) > maxAge {
		return nil, false, nil
	}

	var listings []models.ComparableListing
	if err := json.Unmarshal([]byte(payload), &listings); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached listings: %w", err)
	}
	return listings, true, nil
}

func (s *Storage) PutCachedListings(key string, listings []models.ComparableListing) error {
	payload, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("failed to marshal listings: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO listing_cache (cache_key, listings, fetched_at) VALUES (?,?,?)`,
		key, string(payload), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// PurgeExpiredListings deletes cache entries older than maxAge and returns
// how many were removed.
func (s *Storage) PurgeExpiredListings(maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.Exec(`DELETE FROM listing_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Storage) AddEstimate(e *models.Estimate) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid estimate: %w", err)
	}
	dist, err := json.Marshal(e.Recommendation.Distribution)
	if err != nil {
		return fmt.Errorf("failed to marshal distribution: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	r := e.Recommendation
	_, err = tx.Exec(`
		INSERT INTO estimates
			(id, brand, item_type, size, condition, sale_speed, suggested_price, price_range,
			 market_position, confidence_level, vision_confidence, overall_confidence,
			 sample_size, listings_found, origin, used_fallback, summary, distribution, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Brand, e.ItemType, e.Size, string(e.Condition), string(e.SaleSpeed),
		r.SuggestedPrice, r.PriceRange, r.MarketPosition, r.ConfidenceLevel,
		e.VisionConfidence, e.OverallConfidence, r.SampleSize, e.ListingsFound,
		string(e.Origin), boolToInt(r.UsedFallback), r.Summary, string(dist),
		e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert estimate: %w", err)
	}

	if s.maxEstimates > 0 {
		if _, err = tx.Exec(`
			DELETE FROM estimates WHERE id NOT IN (
				SELECT id FROM estimates ORDER BY created_at DESC LIMIT ?
			)`, s.maxEstimates); err != nil {
			return fmt.Errorf("failed to enforce estimate cap: %w", err)
		}
	}

	return tx.Commit()
}

// GetEstimate loads one estimate by ID.
func (s *Storage) GetEstimate(id string) (*models.Estimate, error) {
	row := s.db.QueryRow(`SELECT `+estimateCols+` FROM estimates WHERE id = ?`, id)
	e, err := scanEstimate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEstimateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	return e, nil
}

// GetRecentEstimates returns up to limit estimates, newest first.
func (s *Storage) GetRecentEstimates(limit int) ([]models.Estimate, error) {
	rows, err := s.db.Query(`SELECT `+estimateCols+` FROM estimates ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	estimates := []models.Estimate{}
	for rows.Next() {
		e, err := scanEstimate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		estimates = append(estimates, *e)
	}
	return estimates, rows.Err()
}

// RotateEstimates keeps at most maxEstimates newest estimates by created_at.
func (s *Storage) RotateEstimates() error {
	if s.maxEstimates <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM estimates WHERE id NOT IN (
			SELECT id FROM estimates ORDER BY created_at DESC LIMIT ?
		)`, s.maxEstimates)
	if err != nil {
		return fmt.Errorf("failed to rotate estimates: %w", err)
	}
	return nil
}

const estimateCols = `id, brand, item_type, size, condition, sale_speed, suggested_price, price_range,
	market_position, confidence_level, vision_confidence, overall_confidence,
	sample_size, listings_found, origin, used_fallback, summary, distribution, created_at`

func scanEstimate(scan func(...any) error) (*models.Estimate, error) {
	var e models.Estimate
	var condition, speed, origin, dist string
	var summary sql.NullString
	var usedFallback int
	var createdAtNano int64
	err := scan(
		&e.ID, &e.Brand, &e.ItemType, &e.Size, &condition, &speed,
		&e.Recommendation.SuggestedPrice, &e.Recommendation.PriceRange,
		&e.Recommendation.MarketPosition, &e.Recommendation.ConfidenceLevel,
		&e.VisionConfidence, &e.OverallConfidence,
		&e.Recommendation.SampleSize, &e.ListingsFound, &origin, &usedFallback,
		&summary, &dist, &createdAtNano,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dist), &e.Recommendation.Distribution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal distribution: %w", err)
	}
	e.Condition = models.Condition(condition)
	e.SaleSpeed = models.SaleSpeed(speed)
	e.Origin = models.Origin(origin)
	e.Recommendation.UsedFallback = usedFallback != 0
	e.Recommendation.Summary = summary.String
	e.CreatedAt = time.Unix(0, createdAtNano)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
