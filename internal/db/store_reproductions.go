package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

const reproductionColumns = `id, customer_name, customer_email, date, status, token,
	date_has_order_details, date_payment_accepted, offer_mail_reminder_sent, comment,
	created_at, updated_at`

var reproductionSorts = map[string]string{
	"date":           "date",
	"created_at":     "created_at",
	"customer_name":  "customer_name",
	"customer_email": "customer_email",
	"status":         "status",
}

func scanReproduction(row pgx.Row) (*models.Reproduction, error) {
	var r models.Reproduction
	var status string
	err := row.Scan(
		&r.ID, &r.CustomerName, &r.CustomerEmail, &r.Date, &status, &r.Token,
		&r.DateHasOrderDetails, &r.DatePaymentAccepted, &r.OfferMailReminderSent, &r.Comment,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReproductionStatus(status)
	return &r, nil
}

func (db *DB) getReproductionWhere(ctx context.Context, where string, arg any) (*models.Reproduction, error) {
	r, err := scanReproduction(db.q(ctx).QueryRow(ctx, `
		SELECT `+reproductionColumns+`
		FROM reproductions
		WHERE `+where+` = $1
	`, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, err
	}

	items, err := db.loadItems(ctx, models.RequestKindReproduction, []uuid.UUID{r.ID})
	if err != nil {
		return nil, err
	}
	r.Items = items[r.ID]
	return r, nil
}

// GetReproduction returns a reproduction with its line items.
func (db *DB) GetReproduction(ctx context.Context, id uuid.UUID) (*models.Reproduction, error) {
	r, err := db.getReproductionWhere(ctx, "id", id)
	if err != nil && !errors.Is(err, delivery.ErrNotFound) {
		return nil, fmt.Errorf("get reproduction: %w", err)
	}
	return r, err
}

// GetReproductionByToken returns the reproduction with the given public token.
func (db *DB) GetReproductionByToken(ctx context.Context, token string) (*models.Reproduction, error) {
	r, err := db.getReproductionWhere(ctx, "token", token)
	if err != nil && !errors.Is(err, delivery.ErrNotFound) {
		return nil, fmt.Errorf("get reproduction by token: %w", err)
	}
	return r, err
}

// SaveReproduction inserts or updates a reproduction and its line items.
func (db *DB) SaveReproduction(ctx context.Context, r *models.Reproduction) error {
	_, err := db.q(ctx).Exec(ctx, `
		INSERT INTO reproductions (`+reproductionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_email = EXCLUDED.customer_email,
			status = EXCLUDED.status,
			date_has_order_details = EXCLUDED.date_has_order_details,
			date_payment_accepted = EXCLUDED.date_payment_accepted,
			offer_mail_reminder_sent = EXCLUDED.offer_mail_reminder_sent,
			comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.CustomerName, r.CustomerEmail, r.Date, string(r.Status), r.Token,
		r.DateHasOrderDetails, r.DatePaymentAccepted, r.OfferMailReminderSent, r.Comment,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save reproduction: %w", err)
	}
	if err := db.saveItems(ctx, r.Ref(), r.Items); err != nil {
		return fmt.Errorf("save reproduction: %w", err)
	}
	return nil
}

// DeleteReproduction removes a reproduction and its line items.
func (db *DB) DeleteReproduction(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q(ctx).Exec(ctx, "DELETE FROM reproductions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete reproduction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// ReproductionsAwaitingPayment returns offered but unpaid reproductions whose
// offer was made before the cutoff.
func (db *DB) ReproductionsAwaitingPayment(ctx context.Context, before time.Time) ([]*models.Reproduction, error) {
	return db.reproductionsAwaitingPayment(ctx, before, maxPageSize)
}

// reproductionsAwaitingPayment reads the unpaid reproductions page by page.
func (db *DB) reproductionsAwaitingPayment(ctx context.Context, before time.Time, pageSize int) ([]*models.Reproduction, error) {
	ds := dialect.From("reproductions").Prepared(true).
		Where(
			goqu.C("status").In(
				string(models.ReproductionStatusHasOrderDetails),
				string(models.ReproductionStatusConfirmed),
			),
			goqu.C("date_has_order_details").Lt(before),
		)

	var all []*models.Reproduction
	for offset := 0; ; offset += pageSize {
		page, _, err := db.listReproductions(ctx, ds, "date_has_order_details", false, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list unpaid reproductions: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	return all, nil
}

// ListReproductions returns reproductions matching the filter, with their
// line items, and the total match count.
func (db *DB) ListReproductions(ctx context.Context, f models.ReproductionFilter) ([]*models.Reproduction, int, error) {
	ds := dialect.From("reproductions").Prepared(true)
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("date").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("date").Lte(*f.To))
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("customer_name").ILike(pattern),
			goqu.C("customer_email").ILike(pattern),
		))
	}
	sort := f.Sort
	if _, ok := reproductionSorts[sort]; !ok {
		sort = "date"
	}
	reproductions, total, err := db.listReproductions(ctx, ds, sort, f.Desc, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reproductions: %w", err)
	}
	return reproductions, total, nil
}

func (db *DB) listReproductions(ctx context.Context, ds *goqu.SelectDataset, sort string, desc bool, limit, offset int) ([]*models.Reproduction, int, error) {
	total, err := db.count(ctx, ds)
	if err != nil {
		return nil, 0, err
	}

	order := goqu.I(sort).Asc()
	if desc {
		order = goqu.I(sort).Desc()
	}
	query, args, err := paginate(ds.Select(goqu.L(reproductionColumns)).Order(order, goqu.C("id").Asc()), limit, offset).ToSQL()
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reproductions []*models.Reproduction
	var ids []uuid.UUID
	for rows.Next() {
		r, err := scanReproduction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reproduction: %w", err)
		}
		reproductions = append(reproductions, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if len(ids) == 0 {
		return reproductions, total, nil
	}
	items, err := db.loadItems(ctx, models.RequestKindReproduction, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range reproductions {
		r.Items = items[r.ID]
	}
	return reproductions, total, nil
}
