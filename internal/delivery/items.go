package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// resolveItems loads the holdings of a create payload in order.
func (o *op) resolveItems(inputs []models.LineItemInput, opts CreateOptions) ([]*models.Holding, error) {
	if len(inputs) == 0 {
		return nil, ErrNoHoldings
	}
	seen := make(map[uuid.UUID]bool, len(inputs))
	holdings := make([]*models.Holding, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.HoldingID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHolding, in.HoldingID)
		}
		seen[in.HoldingID] = true

		h, err := o.holding(in.HoldingID)
		if err != nil {
			return nil, err
		}
		if err := checkRequestable(h, opts); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// checkRequestable applies the restriction and availability checks of opts
// to a newly requested holding.
func checkRequestable(h *models.Holding, opts CreateOptions) error {
	if opts.RequireAvailable && !h.IsAvailableForRequest() {
		if h.UsageRestriction == models.UsageRestrictionClosed {
			return fmt.Errorf("%w: %s", ErrHoldingRestricted, h.Signature)
		}
		return fmt.Errorf("%w: %s is %s", ErrHoldingUnavailable, h.Signature, h.Status)
	}
	if h.UsageRestriction == models.UsageRestrictionClosed && !opts.AllowRestricted {
		return fmt.Errorf("%w: %s", ErrHoldingRestricted, h.Signature)
	}
	return nil
}

// mergeItems matches the edited line items of r against its current ones by
// holding. Matched items keep their operational flags, dropped items release
// their holding and new items are returned unclaimed.
func (o *op) mergeItems(r models.Request, current []*models.LineItem, inputs []models.LineItemInput, opts CreateOptions) ([]*models.LineItem, error) {
	if len(inputs) == 0 {
		return nil, ErrNoHoldings
	}

	byHolding := make(map[uuid.UUID]*models.LineItem, len(current))
	for _, li := range current {
		byHolding[li.HoldingID] = li
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	items := make([]*models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.HoldingID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHolding, in.HoldingID)
		}
		seen[in.HoldingID] = true

		if li, ok := byHolding[in.HoldingID]; ok {
			li.MergeWith(&models.LineItem{HoldingID: li.HoldingID, Holding: li.Holding, Comment: in.Comment})
			items = append(items, li)
			continue
		}

		if !r.IsActive() {
			return nil, fmt.Errorf("%w: cannot add holdings to a %s request", ErrIllegalStatusTransition, r.StatusName())
		}
		h, err := o.holding(in.HoldingID)
		if err != nil {
			return nil, err
		}
		if err := checkRequestable(h, opts); err != nil {
			return nil, err
		}
		items = append(items, models.NewLineItem(r.Ref(), h, in.Comment))
	}

	for _, li := range current {
		if seen[li.HoldingID] || !r.IsActive() || !li.IsClaiming() {
			continue
		}
		if err := o.release(r, li.Holding); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// forget drops r from the set of requests saved at the end of the operation.
func (o *op) forget(r models.Request) {
	ref := r.Ref()
	for i, d := range o.dirtyRequest {
		if d == ref {
			o.dirtyRequest = append(o.dirtyRequest[:i], o.dirtyRequest[i+1:]...)
			break
		}
	}
	delete(o.requests, ref)
}

// MarkPrinted flags the line items of a request as printed and returns their
// print-queue labels. Already printed items are skipped unless always is set.
func (s *Service) MarkPrinted(ctx context.Context, ref models.RequestRef, always bool) ([]string, error) {
	var labels []string
	err := s.run(ctx, func(o *op) error {
		r, err := o.request(ref)
		if err != nil {
			return err
		}
		for _, li := range r.LineItems() {
			if li.Printed && !always {
				continue
			}
			li.Printed = true
			labels = append(labels, li.ShortString())
		}
		if res, ok := r.(*models.Reservation); ok {
			res.Printed = true
		}
		if len(labels) > 0 {
			o.touch(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}
