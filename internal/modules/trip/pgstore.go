// README: Trip store backed by PostgreSQL.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"metro/internal/types"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"

	entryRouteConstraint = "route_entries_trip_route_key"
	entryOrderConstraint = "route_entries_trip_order_key"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

const tripColumns = `id, status, status_version, owner, user_id, moderator_id, moderator_name, name, description,
       created_at, formed_at, ended_at, qr, duration_total, manually_ordered`

const entryColumns = `id, trip_id, route_id, "order", duration, free, created_at`

func (s *PgStore) GetOrCreateDraft(ctx context.Context, draft *Trip) (*Trip, error) {
	_, err := s.db.Exec(ctx, `
        INSERT INTO trips (id, status, status_version, user_id, created_at)
        VALUES ($1, 'DRAFT', 0, $2, $3)
        ON CONFLICT (user_id) WHERE status = 'DRAFT' DO NOTHING`,
		string(draft.ID), string(draft.UserID), draft.CreatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	t, err := s.FindDraft(ctx, draft.UserID)
	if errors.Is(err, ErrNotFound) {
		// the draft we collided with was formed or deleted in between
		return nil, fmt.Errorf("%w: draft changed concurrently", ErrTxConflict)
	}
	return t, err
}

func (s *PgStore) FindDraft(ctx context.Context, userID types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE user_id = $1 AND status = 'DRAFT'`, string(userID))
	return scanOne(row)
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, string(id))
	return scanOne(row)
}

func (s *PgStore) ListEntries(ctx context.Context, tripID types.ID) ([]RouteEntry, error) {
	return listEntries(ctx, s.db, tripID)
}

func (s *PgStore) List(ctx context.Context, f ListFilter) ([]Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE status NOT IN ('DRAFT', 'DELETED')`
	var args []any
	if f.UserID != "" {
		args = append(args, string(f.UserID))
		q += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Status != StatusNone {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateStatus(ctx context.Context, tr Transition) (bool, error) {
	return updateStatus(ctx, s.db, tr)
}

func (s *PgStore) AppendEvent(ctx context.Context, e *Event) error {
	return appendEvent(ctx, s.db, e)
}

// WithTripLock runs fn in a transaction holding SELECT ... FOR UPDATE on the
// trip row. The transaction commits only when fn returns nil.
func (s *PgStore) WithTripLock(ctx context.Context, tripID types.ID, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanOne(tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, string(tripID)))
	if err != nil {
		return classify(err)
	}
	if err := fn(&pgTx{tx: tx, trip: t}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

type pgTx struct {
	tx   pgx.Tx
	trip *Trip
}

func (p *pgTx) Trip() *Trip { return p.trip }

func (p *pgTx) Entries(ctx context.Context) ([]RouteEntry, error) {
	return listEntries(ctx, p.tx, p.trip.ID)
}

func (p *pgTx) InsertEntry(ctx context.Context, e *RouteEntry) error {
	_, err := p.tx.Exec(ctx, `
        INSERT INTO route_entries (id, trip_id, route_id, "order", duration, free, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.ID), string(e.TripID), string(e.RouteID), e.Order, e.Duration, e.Free, e.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == entryRouteConstraint {
		return ErrAlreadyPresent
	}
	return err
}

func (p *pgTx) DeleteEntry(ctx context.Context, entryID types.ID) error {
	_, err := p.tx.Exec(ctx, `DELETE FROM route_entries WHERE id = $1`, string(entryID))
	return err
}

func (p *pgTx) SetOrders(ctx context.Context, changes []OrderChange) error {
	if len(changes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(`UPDATE route_entries SET "order" = $1 WHERE id = $2 AND trip_id = $3`, c.To, string(c.EntryID), string(p.trip.ID))
	}
	br := p.tx.SendBatch(ctx, batch)
	defer br.Close()
	for _, c := range changes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("reorder entry %s: %w", c.EntryID, err)
		}
	}
	return nil
}

func (p *pgTx) SetFree(ctx context.Context, entryID types.ID, free bool) error {
	_, err := p.tx.Exec(ctx, `UPDATE route_entries SET free = $2 WHERE id = $1`, string(entryID), free)
	return err
}

func (p *pgTx) UpdateDraft(ctx context.Context, patch DraftPatch) error {
	_, err := p.tx.Exec(ctx, `
        UPDATE trips
        SET owner = COALESCE($2, owner),
            name = COALESCE($3, name),
            description = COALESCE($4, description)
        WHERE id = $1`,
		string(p.trip.ID), patch.Owner, patch.Name, patch.Description,
	)
	if err != nil {
		return err
	}
	patch.apply(p.trip)
	return nil
}

func (p *pgTx) SetManuallyOrdered(ctx context.Context) error {
	_, err := p.tx.Exec(ctx, `UPDATE trips SET manually_ordered = TRUE WHERE id = $1`, string(p.trip.ID))
	if err != nil {
		return err
	}
	p.trip.ManuallyOrdered = true
	return nil
}

func (p *pgTx) UpdateStatus(ctx context.Context, tr Transition) (bool, error) {
	return updateStatus(ctx, p.tx, tr)
}

func (p *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	return appendEvent(ctx, p.tx, e)
}

func updateStatus(ctx context.Context, q querier, tr Transition) (bool, error) {
	tag, err := q.Exec(ctx, `
        UPDATE trips
        SET status = $1,
            status_version = status_version + 1,
            moderator_id = COALESCE($2, moderator_id),
            moderator_name = COALESCE($3, moderator_name),
            formed_at = COALESCE($4, formed_at),
            ended_at = COALESCE($5, ended_at),
            duration_total = COALESCE($6, duration_total),
            qr = COALESCE($7, qr)
        WHERE id = $8 AND status = $9 AND status_version = $10`,
		string(tr.To),
		toStringPtr(tr.ModeratorID),
		tr.ModeratorName,
		tr.FormedAt,
		tr.EndedAt,
		tr.DurationTotal,
		tr.QR,
		string(tr.TripID),
		string(tr.From),
		tr.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func appendEvent(ctx context.Context, q querier, e *Event) error {
	_, err := q.Exec(ctx, `
        INSERT INTO trip_state_events (trip_id, from_status, to_status, actor_id, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		string(e.TripID),
		string(e.FromStatus),
		string(e.ToStatus),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func listEntries(ctx context.Context, q querier, tripID types.ID) ([]RouteEntry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM route_entries WHERE trip_id = $1 ORDER BY "order", id`, string(tripID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteEntry
	for rows.Next() {
		var e RouteEntry
		var id, tid, rid string
		if err := rows.Scan(&id, &tid, &rid, &e.Order, &e.Duration, &e.Free, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID, e.TripID, e.RouteID = types.ID(id), types.ID(tid), types.ID(rid)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row) (*Trip, error) {
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var id, status, userID string
	var moderatorID, qr pgtype.Text
	var formedAt, endedAt pgtype.Timestamptz
	var durationTotal pgtype.Int4

	err := row.Scan(
		&id, &status, &t.StatusVersion, &t.Owner, &userID, &moderatorID, &t.ModeratorName, &t.Name, &t.Description,
		&t.CreatedAt, &formedAt, &endedAt, &qr, &durationTotal, &t.ManuallyOrdered,
	)
	if err != nil {
		return nil, err
	}
	t.ID, t.Status, t.UserID = types.ID(id), Status(status), types.ID(userID)
	if moderatorID.Valid {
		m := types.ID(moderatorID.String)
		t.ModeratorID = &m
	}
	t.FormedAt = toTimePtr(formedAt)
	t.EndedAt = toTimePtr(endedAt)
	if qr.Valid {
		t.QR = &qr.String
	}
	if durationTotal.Valid {
		d := int(durationTotal.Int32)
		t.DurationTotal = &d
	}
	return &t, nil
}

// classify turns retryable Postgres failures into ErrTxConflict and leaves
// everything else as is.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Message)
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == entryOrderConstraint:
		return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Message)
	}
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
