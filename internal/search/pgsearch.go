package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgSearch implements Searcher against Postgres as a fallback. Applicant
// names and roll numbers are short strings, so ILIKE against the joined
// tables is enough; no tsvector column is kept for them.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates a PostgreSQL-backed applicant searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pattern := "%" + text + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT a.id, a.test_id, p.name, p.roll_number, a.venue, a.attended, COUNT(*) OVER ()
		FROM applicants a
		JOIN persons p ON p.id = a.person_id
		WHERE a.test_id = $1 AND (p.name ILIKE $2 OR p.roll_number ILIKE $2)
		ORDER BY p.roll_number
		LIMIT $3
	`, q.TestID, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("applicant search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ApplicantID, &r.TestID, &r.Name, &r.RollNumber, &r.Venue, &r.Attended, &total); err != nil {
			return nil, 0, fmt.Errorf("scan applicant hit: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate applicant hits: %w", err)
	}
	return results, total, nil
}
