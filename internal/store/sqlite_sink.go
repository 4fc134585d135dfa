package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gmaps-engine/internal/domain"
)

// SQLiteSink upserts places by id and records which batch carried them.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(db *DB) *SQLiteSink {
	return &SQLiteSink{db: db.Pool}
}

func (s *SQLiteSink) Name() string { return TypeSQLite }

func (s *SQLiteSink) Save(ctx context.Context, records []domain.Place, filename string) (string, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO batches (filename, record_count, created_at)
VALUES (?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET record_count = excluded.record_count, created_at = excluded.created_at;`,
		name, len(records), now); err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_places WHERE filename = ?;`, name); err != nil {
		return "", err
	}

	for i, p := range records {
		data, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO places (id, name, city, district, search_term, data, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name = excluded.name,
  city = excluded.city,
  district = excluded.district,
  search_term = excluded.search_term,
  data = excluded.data,
  last_seen = excluded.last_seen;`,
			p.ID, p.Name, p.Location.City, p.Location.District, p.Metadata.SearchTerm, string(data), now, now,
		); err != nil {
			return "", fmt.Errorf("upsert place %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO batch_places (filename, place_id, ord) VALUES (?, ?, ?);`,
			name, p.ID, i); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return "sqlite://batches/" + name, nil
}

func (s *SQLiteSink) Load(ctx context.Context, filename string) ([]domain.Place, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE filename = ? LIMIT 1;`, filename).Scan(&n)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT p.data
FROM batch_places bp
JOIN places p ON p.id = bp.place_id
WHERE bp.filename = ?
ORDER BY bp.ord;`, filename)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Place{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p domain.Place
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPlaces returns how many distinct places have ever been stored.
func (s *SQLiteSink) CountPlaces(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places;`).Scan(&n)
	return n, err
}
