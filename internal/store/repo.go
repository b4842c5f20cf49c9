package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/dailymail/internal/models"
)

// LoadWatermarks returns the last fired date key of every action.
func (db *DB) LoadWatermarks(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT action, date_key FROM watermarks`)
	if err != nil {
		return nil, fmt.Errorf("store: load watermarks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var action, key string
		if err := rows.Scan(&action, &key); err != nil {
			return nil, err
		}
		out[action] = key
	}
	return out, rows.Err()
}

// SaveWatermark records that action fired on dateKey.
func (db *DB) SaveWatermark(ctx context.Context, action, dateKey string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO watermarks (action, date_key, fired_at)
		VALUES (?, ?, ?)
		ON CONFLICT(action) DO UPDATE SET
			date_key = excluded.date_key,
			fired_at = excluded.fired_at
	`, action, dateKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save watermark: %w", err)
	}
	return nil
}

// MarkLearned marks a deck row as learned. It reports false when the row was
// already marked.
func (db *DB) MarkLearned(ctx context.Context, deck string, row int) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO learned (deck, row_index, learned_at) VALUES (?, ?, ?)`,
		deck, row, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("store: mark learned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark learned: %w", err)
	}
	return n > 0, nil
}

// LearnedRows returns the set of row indexes marked learned in deck.
func (db *DB) LearnedRows(ctx context.Context, deck string) (map[int]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT row_index FROM learned WHERE deck = ?`, deck)
	if err != nil {
		return nil, fmt.Errorf("store: learned rows: %w", err)
	}
	defer rows.Close()

	out := make(map[int]struct{})
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out[idx] = struct{}{}
	}
	return out, rows.Err()
}

// ListLearned returns the learned marks of deck, newest first.
func (db *DB) ListLearned(ctx context.Context, deck string) ([]models.LearnedMark, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT deck, row_index, learned_at FROM learned
		WHERE deck = ?
		ORDER BY learned_at DESC, row_index ASC
	`, deck)
	if err != nil {
		return nil, fmt.Errorf("store: list learned: %w", err)
	}
	defer rows.Close()

	var out []models.LearnedMark
	for rows.Next() {
		var m models.LearnedMark
		if err := rows.Scan(&m.Deck, &m.Row, &m.LearnedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddReview stores a review and returns it with its id.
func (db *DB) AddReview(ctx context.Context, rating int, comment string) (*models.Review, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (rating, comment, created_at) VALUES (?, ?, ?)`,
		rating, comment, now)
	if err != nil {
		return nil, fmt.Errorf("store: add review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: add review: %w", err)
	}
	return &models.Review{ID: id, Rating: rating, Comment: comment, CreatedAt: now}, nil
}

// ListReviews returns the most recent reviews.
func (db *DB) ListReviews(ctx context.Context, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, rating, comment, created_at FROM reviews ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
