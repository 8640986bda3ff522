package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// itemTables maps a request kind to its line item table and owner column.
var itemTables = map[models.RequestKind]struct{ table, owner string }{
	models.RequestKindReservation:  {"reservation_items", "reservation_id"},
	models.RequestKindReproduction: {"reproduction_items", "reproduction_id"},
}

const itemHoldingColumns = `h.id, h.record_pid, h.title, h.signature, h.floor, h.direction, h.cabinet, h.shelf,
	h.usage_restriction, h.status, h.revision, h.created_at, h.updated_at`

// loadItems returns the line items of the given requests with their holdings,
// grouped by request and in position order.
func (db *DB) loadItems(ctx context.Context, kind models.RequestKind, ids []uuid.UUID) (map[uuid.UUID][]*models.LineItem, error) {
	t := itemTables[kind]
	rows, err := db.q(ctx).Query(ctx, `
		SELECT i.id, i.`+t.owner+`, i.comment, i.completed, i.printed, i.on_hold, `+itemHoldingColumns+`
		FROM `+t.table+` i
		JOIN holdings h ON h.id = i.holding_id
		WHERE i.`+t.owner+` = ANY($1)
		ORDER BY i.`+t.owner+`, i.position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]*models.LineItem, len(ids))
	for rows.Next() {
		var li models.LineItem
		var h models.Holding
		var restriction, status string
		err := rows.Scan(
			&li.ID, &li.Request.ID, &li.Comment, &li.Completed, &li.Printed, &li.OnHold,
			&h.ID, &h.RecordPID, &h.Title, &h.Signature, &h.Floor, &h.Direction, &h.Cabinet, &h.Shelf,
			&restriction, &status, &h.Revision, &h.CreatedAt, &h.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		h.UsageRestriction = models.UsageRestriction(restriction)
		h.Status = models.HoldingStatus(status)
		li.Request.Kind = kind
		li.SetHolding(&h)
		items[li.Request.ID] = append(items[li.Request.ID], &li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

// saveItems replaces the stored line items of a request with items.
func (db *DB) saveItems(ctx context.Context, ref models.RequestRef, items []*models.LineItem) error {
	t := itemTables[ref.Kind]
	keep := make([]uuid.UUID, 0, len(items))
	for _, li := range items {
		keep = append(keep, li.ID)
	}

	if _, err := db.q(ctx).Exec(ctx, `
		DELETE FROM `+t.table+`
		WHERE `+t.owner+` = $1 AND NOT (id = ANY($2))
	`, ref.ID, keep); err != nil {
		return fmt.Errorf("delete dropped line items: %w", err)
	}

	for pos, li := range items {
		_, err := db.q(ctx).Exec(ctx, `
			INSERT INTO `+t.table+` (id, `+t.owner+`, holding_id, position, comment, completed, printed, on_hold)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				holding_id = EXCLUDED.holding_id,
				position = EXCLUDED.position,
				comment = EXCLUDED.comment,
				completed = EXCLUDED.completed,
				printed = EXCLUDED.printed,
				on_hold = EXCLUDED.on_hold
		`, li.ID, ref.ID, li.HoldingID, pos, li.Comment, li.Completed, li.Printed, li.OnHold)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("save line item: %w: %s", delivery.ErrDuplicateHolding, li.HoldingID)
			}
			return fmt.Errorf("save line item: %w", err)
		}
	}
	return nil
}

// FindLineItem returns the line item with the given id. Only its identity,
// holding and flags are filled in.
func (db *DB) FindLineItem(ctx context.Context, id uuid.UUID) (*models.LineItem, error) {
	var li models.LineItem
	var kind string
	err := db.q(ctx).QueryRow(ctx, `
		SELECT kind, request_id, item_id, holding_id, completed, on_hold
		FROM holding_claims
		WHERE item_id = $1
	`, id).Scan(&kind, &li.Request.ID, &li.ID, &li.HoldingID, &li.Completed, &li.OnHold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("find line item: %w", err)
	}
	li.Request.Kind = models.RequestKind(kind)
	return &li, nil
}

// ActiveRequestFor returns the newest active request other than except that
// claims the holding through an open line item.
func (db *DB) ActiveRequestFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (*models.RequestRef, error) {
	var ref models.RequestRef
	var kind string
	err := db.q(ctx).QueryRow(ctx, `
		SELECT kind, request_id
		FROM holding_claims
		WHERE holding_id = $1 AND active AND NOT completed AND NOT on_hold
		  AND NOT (kind = $2 AND request_id = $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, holdingID, string(except.Kind), except.ID).Scan(&kind, &ref.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active request: %w", err)
	}
	ref.Kind = models.RequestKind(kind)
	return &ref, nil
}

// HasActiveRequestsFor reports whether an active request other than except
// claims the holding.
func (db *DB) HasActiveRequestsFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (bool, error) {
	ref, err := db.ActiveRequestFor(ctx, holdingID, except)
	if err != nil {
		return false, err
	}
	return ref != nil, nil
}

// OnHoldRequestFor returns the active request that has the holding on hold.
func (db *DB) OnHoldRequestFor(ctx context.Context, holdingID uuid.UUID) (*models.RequestRef, error) {
	var ref models.RequestRef
	var kind string
	err := db.q(ctx).QueryRow(ctx, `
		SELECT kind, request_id
		FROM holding_claims
		WHERE holding_id = $1 AND active AND on_hold AND NOT completed
		ORDER BY created_at
		LIMIT 1
	`, holdingID).Scan(&kind, &ref.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find on-hold request: %w", err)
	}
	ref.Kind = models.RequestKind(kind)
	return &ref, nil
}
