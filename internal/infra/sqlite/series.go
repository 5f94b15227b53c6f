package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finquest-app/finquest/internal/domain"
)

// ─── Return Series Operations ───────────────────────────────────────────────

// UpsertSeries stores a category's annual returns.
func (db *DB) UpsertSeries(category domain.Category, startYear int, annualReturns []float64) error {
	data, err := json.Marshal(annualReturns)
	if err != nil {
		return err
	}
	_, err = db.db.Exec(`
		INSERT INTO return_series (category, start_year, returns_json, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(category) DO UPDATE SET
			start_year   = excluded.start_year,
			returns_json = excluded.returns_json,
			updated_at   = datetime('now')
	`, string(category), startYear, string(data))
	return err
}

// GetSeries retrieves a category's annual returns.
// Returns domain.ErrUnknownCategory if nothing is stored.
func (db *DB) GetSeries(category domain.Category) (int, []float64, error) {
	var (
		startYear int
		data      string
	)
	err := db.db.QueryRow(`
		SELECT start_year, returns_json FROM return_series WHERE category = ?
	`, string(category)).Scan(&startYear, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	if err != nil {
		return 0, nil, err
	}

	var returns []float64
	if err := json.Unmarshal([]byte(data), &returns); err != nil {
		return 0, nil, fmt.Errorf("decode series %q: %w", category, err)
	}
	return startYear, returns, nil
}

// ListSeriesCategories returns every stored category.
func (db *DB) ListSeriesCategories() ([]domain.Category, error) {
	rows, err := db.db.Query(`SELECT category FROM return_series ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, domain.Category(c))
	}
	return out, rows.Err()
}
