package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finquest-app/finquest/internal/domain"
)

// ─── Run Operations ─────────────────────────────────────────────────────────

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SaveRun inserts or replaces a run.
func (db *DB) SaveRun(run domain.Run) error {
	batches, err := json.Marshal(run.Batches)
	if err != nil {
		return fmt.Errorf("encode batches: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}

	_, err = db.db.Exec(`
		INSERT INTO runs (id, quest_id, batches_json, cursor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quest_id     = excluded.quest_id,
			batches_json = excluded.batches_json,
			cursor       = excluded.cursor,
			updated_at   = excluded.updated_at
	`, run.ID, run.QuestID, string(batches), run.Cursor,
		run.CreatedAt.UTC().Format(timeLayout), run.UpdatedAt.UTC().Format(timeLayout))
	return err
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(id string) (*domain.Run, error) {
	row := db.db.QueryRow(`
		SELECT id, quest_id, batches_json, cursor, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all runs, most recently updated first.
func (db *DB) ListRuns() ([]domain.Run, error) {
	rows, err := db.db.Query(`
		SELECT id, quest_id, batches_json, cursor, created_at, updated_at
		FROM runs ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// DeleteRun removes a run.
func (db *DB) DeleteRun(id string) error {
	res, err := db.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var (
		run                  domain.Run
		batches              string
		createdAt, updatedAt string
	)
	if err := s.Scan(&run.ID, &run.QuestID, &batches, &run.Cursor, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(batches), &run.Batches); err != nil {
		return nil, fmt.Errorf("decode batches of run %s: %w", run.ID, err)
	}
	run.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	run.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &run, nil
}
