package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

const reservationColumns = `id, visitor_name, visitor_email, date, return_date, special, printed,
	status, queue_no, comment, created_at, updated_at`

var reservationSorts = map[string]string{
	"date":          "date",
	"created_at":    "created_at",
	"visitor_name":  "visitor_name",
	"visitor_email": "visitor_email",
	"status":        "status",
	"queue_no":      "queue_no",
}

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var r models.Reservation
	var status string
	err := row.Scan(
		&r.ID, &r.VisitorName, &r.VisitorEmail, &r.Date, &r.ReturnDate, &r.Special, &r.Printed,
		&status, &r.QueueNo, &r.Comment, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)
	return &r, nil
}

// GetReservation returns a reservation with its line items.
func (db *DB) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	r, err := scanReservation(db.q(ctx).QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	items, err := db.loadItems(ctx, models.RequestKindReservation, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	r.Items = items[id]
	return r, nil
}

// SaveReservation inserts or updates a reservation and its line items.
func (db *DB) SaveReservation(ctx context.Context, r *models.Reservation) error {
	_, err := db.q(ctx).Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			visitor_name = EXCLUDED.visitor_name,
			visitor_email = EXCLUDED.visitor_email,
			date = EXCLUDED.date,
			return_date = EXCLUDED.return_date,
			special = EXCLUDED.special,
			printed = EXCLUDED.printed,
			status = EXCLUDED.status,
			queue_no = EXCLUDED.queue_no,
			comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.VisitorName, r.VisitorEmail, r.Date, r.ReturnDate, r.Special, r.Printed,
		string(r.Status), r.QueueNo, r.Comment, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save reservation: %w", err)
	}
	if err := db.saveItems(ctx, r.Ref(), r.Items); err != nil {
		return fmt.Errorf("save reservation: %w", err)
	}
	return nil
}

// DeleteReservation removes a reservation and its line items.
func (db *DB) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q(ctx).Exec(ctx, "DELETE FROM reservations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// queueLockKey namespaces the per-day advisory locks of NextQueueNumber.
const queueLockKey = 0x5155

// NextQueueNumber returns the next free queue number for the visit day. Inside
// a transaction it locks the day until commit, so concurrent reservations for
// the same day get distinct numbers.
func (db *DB) NextQueueNumber(ctx context.Context, day time.Time) (int, error) {
	q := db.q(ctx)
	if _, err := q.Exec(ctx,
		"SELECT pg_advisory_xact_lock($1, hashtext($2::date::text))", queueLockKey, day); err != nil {
		return 0, fmt.Errorf("lock queue numbers: %w", err)
	}

	var next int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_no), 0) + 1
		FROM reservations
		WHERE date = $1
	`, day).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return next, nil
}

// ListReservations returns reservations matching the filter, with their line
// items, and the total match count.
func (db *DB) ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.Reservation, int, error) {
	ds := dialect.From("reservations").Prepared(true)
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("date").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("date").Lte(*f.To))
	}
	if f.Printed != nil {
		ds = ds.Where(goqu.C("printed").Eq(*f.Printed))
	}
	if f.Special != nil {
		ds = ds.Where(goqu.C("special").Eq(*f.Special))
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("visitor_name").ILike(pattern),
			goqu.C("visitor_email").ILike(pattern),
		))
	}

	total, err := db.count(ctx, ds)
	if err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}

	ds = ds.Select(goqu.L(reservationColumns)).Order(orderBy(reservationSorts, f.Sort, "date", f.Desc), goqu.C("queue_no").Asc())
	query, args, err := paginate(ds, f.Limit, f.Offset).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build reservations query: %w", err)
	}

	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	var ids []uuid.UUID
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reservations: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return reservations, total, nil
	}
	items, err := db.loadItems(ctx, models.RequestKindReservation, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range reservations {
		r.Items = items[r.ID]
	}
	return reservations, total, nil
}

// orderBy resolves a requested sort key against an allow list.
func orderBy(allowed map[string]string, key, fallback string, desc bool) exp.OrderedExpression {
	col, ok := allowed[key]
	if !ok {
		col = fallback
	}
	if desc {
		return goqu.C(col).Desc()
	}
	return goqu.C(col).Asc()
}
