// README: Route catalog store backed by PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"metro/internal/types"
)

var ErrNotFound = errors.New("route not found")

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db       DB
	currency string
}

func NewStore(db DB, currency string) *Store {
	return &Store{db: db, currency: currency}
}

const routeColumns = `id, origin, destination, description, price, is_active, travel_minutes, thumbnail`

func (s *Store) Get(ctx context.Context, id types.ID) (*Route, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, string(id))
	r, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Search lists active routes whose origin and destination contain the given
// fragments, case-insensitively. Fragments match literally.
func (s *Store) Search(ctx context.Context, f SearchFilter) ([]Route, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+routeColumns+`
        FROM routes
        WHERE is_active
          AND origin ILIKE $1 ESCAPE '\'
          AND destination ILIKE $2 ESCAPE '\'
        ORDER BY origin, destination`,
		containsPattern(f.Origin), containsPattern(f.Destination),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a user fragment into a LIKE pattern matching it as a substring.
func containsPattern(fragment string) string {
	return "%" + likeEscaper.Replace(fragment) + "%"
}

// SetTravelMinutes assigns the reference duration only when none is stored and
// returns the value that ends up persisted.
func (s *Store) SetTravelMinutes(ctx context.Context, id types.ID, minutes int) (int, error) {
	var stored int
	err := s.db.QueryRow(ctx, `
        UPDATE routes
        SET travel_minutes = CASE WHEN travel_minutes = 0 THEN $2 ELSE travel_minutes END
        WHERE id = $1
        RETURNING travel_minutes`,
		string(id), minutes,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("set travel minutes: %w", err)
	}
	return stored, nil
}

func (s *Store) scan(row pgx.Row) (*Route, error) {
	var r Route
	var id string
	var thumb pgtype.Text
	err := row.Scan(&id, &r.Origin, &r.Destination, &r.Description, &r.Price.Amount, &r.Active, &r.TravelMinutes, &thumb)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.Price.Currency = s.currency
	if thumb.Valid {
		r.Thumbnail = &thumb.String
	}
	return &r, nil
}
