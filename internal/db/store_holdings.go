package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

const holdingColumns = `id, record_pid, title, signature, floor, direction, cabinet, shelf,
	usage_restriction, status, revision, created_at, updated_at`

func scanHolding(row pgx.Row, h *models.Holding) error {
	var restriction, status string
	err := row.Scan(
		&h.ID, &h.RecordPID, &h.Title, &h.Signature, &h.Floor, &h.Direction, &h.Cabinet, &h.Shelf,
		&restriction, &status, &h.Revision, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return err
	}
	h.UsageRestriction = models.UsageRestriction(restriction)
	h.Status = models.HoldingStatus(status)
	return nil
}

// CreateHolding registers a new holding.
func (db *DB) CreateHolding(ctx context.Context, h *models.Holding) error {
	_, err := db.q(ctx).Exec(ctx, `
		INSERT INTO holdings (`+holdingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, h.ID, h.RecordPID, h.Title, h.Signature, h.Floor, h.Direction, h.Cabinet, h.Shelf,
		string(h.UsageRestriction), string(h.Status), h.Revision, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create holding: %w: %s", delivery.ErrDuplicateHolding, h.Signature)
		}
		return fmt.Errorf("create holding: %w", err)
	}
	return nil
}

// GetHolding returns a holding by ID.
func (db *DB) GetHolding(ctx context.Context, id uuid.UUID) (*models.Holding, error) {
	var h models.Holding
	err := scanHolding(db.q(ctx).QueryRow(ctx, `
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE id = $1
	`, id), &h)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("get holding: %w", err)
	}
	return &h, nil
}

// SaveHolding writes h when its revision is still current and bumps the
// revision.
func (db *DB) SaveHolding(ctx context.Context, h *models.Holding) error {
	tag, err := db.q(ctx).Exec(ctx, `
		UPDATE holdings
		SET record_pid = $3, title = $4, signature = $5, floor = $6, direction = $7,
		    cabinet = $8, shelf = $9, usage_restriction = $10, status = $11,
		    revision = revision + 1, updated_at = $12
		WHERE id = $1 AND revision = $2
	`, h.ID, h.Revision, h.RecordPID, h.Title, h.Signature, h.Floor, h.Direction,
		h.Cabinet, h.Shelf, string(h.UsageRestriction), string(h.Status), h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.q(ctx).QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM holdings WHERE id = $1)", h.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check holding: %w", err)
		}
		if !exists {
			return delivery.ErrNotFound
		}
		return delivery.ErrConcurrentModification
	}
	h.Revision++
	return nil
}

// DeleteHolding removes a holding.
func (db *DB) DeleteHolding(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q(ctx).Exec(ctx, "DELETE FROM holdings WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return delivery.ErrHoldingInUse
		}
		return fmt.Errorf("delete holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// IsHoldingReferenced reports whether any line item points at the holding.
func (db *DB) IsHoldingReferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	var used bool
	err := db.q(ctx).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM reservation_items WHERE holding_id = $1)
		    OR EXISTS(SELECT 1 FROM reproduction_items WHERE holding_id = $1)
	`, id).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check holding references: %w", err)
	}
	return used, nil
}

// ListHoldings returns holdings matching the filter and the total match count.
func (db *DB) ListHoldings(ctx context.Context, f models.HoldingFilter) ([]*models.Holding, int, error) {
	ds := dialect.From("holdings").Prepared(true)
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.Floor != nil {
		ds = ds.Where(goqu.C("floor").Eq(*f.Floor))
	}
	if f.RecordPID != "" {
		ds = ds.Where(goqu.C("record_pid").Eq(f.RecordPID))
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("signature").ILike(pattern),
			goqu.C("title").ILike(pattern),
		))
	}

	total, err := db.count(ctx, ds)
	if err != nil {
		return nil, 0, fmt.Errorf("count holdings: %w", err)
	}

	query, args, err := paginate(ds.Select(goqu.L(holdingColumns)).Order(goqu.C("signature").Asc()), f.Limit, f.Offset).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build holdings query: %w", err)
	}
	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		var h models.Holding
		if err := scanHolding(rows, &h); err != nil {
			return nil, 0, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate holdings: %w", err)
	}
	return holdings, total, nil
}

func (db *DB) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	query, args, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, err
	}
	var total int
	if err := db.q(ctx).QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

const maxPageSize = 500

func paginate(ds *goqu.SelectDataset, limit, offset int) *goqu.SelectDataset {
	switch {
	case limit <= 0:
		limit = 50
	case limit > maxPageSize:
		limit = maxPageSize
	}
	ds = ds.Limit(uint(limit))
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	return ds
}
