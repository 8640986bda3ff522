package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// ScanOutcome tells what a scan did.
type ScanOutcome string

const (
	// ScanMarked means the line item of the scanned holding was advanced.
	ScanMarked ScanOutcome = "marked"
	// ScanNotFound means the identifier matched nothing to act on.
	ScanNotFound ScanOutcome = "not_found"

	// scanFailed is only counted; a failed scan returns an error.
	scanFailed ScanOutcome = "error"
)

// ScanResult is the outcome of scanning a slip or holding barcode.
type ScanResult struct {
	Outcome             ScanOutcome          `json:"outcome"`
	Holding             *models.Holding      `json:"holding,omitempty"`
	OldStatus           models.HoldingStatus `json:"old_status,omitempty"`
	Request             *models.RequestRef   `json:"request,omitempty"`
	RequestStatusBefore string               `json:"request_status_before,omitempty"`
	RequestStatusAfter  string               `json:"request_status_after,omitempty"`
	OnHoldFor           *models.RequestRef   `json:"on_hold_for,omitempty"`
}

// Scan resolves a line item or holding id to the active request that claims
// the holding and marks its line item. Identifiers that lead nowhere produce
// a ScanNotFound result, not an error.
func (s *Service) Scan(ctx context.Context, identifier string) (*ScanResult, error) {
	result := &ScanResult{Outcome: ScanNotFound}
	id, err := uuid.Parse(strings.TrimSpace(identifier))
	if err != nil {
		s.metrics.RecordScan(string(ScanNotFound))
		return result, nil
	}

	err = s.run(ctx, func(o *op) error {
		ref, holdingID, err := o.resolveScan(id)
		if err != nil || ref == nil {
			return err
		}

		r, err := o.request(*ref)
		if err != nil {
			return err
		}
		if !r.IsActive() {
			return nil
		}
		h, err := o.holding(holdingID)
		if err != nil {
			return err
		}

		result.RequestStatusBefore = r.StatusName()
		result.OldStatus = h.Status
		if err := o.markItem(r, holdingID); err != nil {
			return err
		}
		result.Outcome = ScanMarked
		result.Holding = h
		result.Request = ref
		result.RequestStatusAfter = r.StatusName()
		return nil
	})
	if err != nil {
		s.metrics.RecordScan(string(scanFailed))
		return nil, err
	}

	if result.Outcome == ScanMarked {
		if held, err := s.store.OnHoldRequestFor(ctx, result.Holding.ID); err == nil {
			result.OnHoldFor = held
		}
	}
	s.metrics.RecordScan(string(result.Outcome))
	return result, nil
}

// resolveScan finds the request and holding an identifier points at. A nil
// ref means there is nothing to mark.
func (o *op) resolveScan(id uuid.UUID) (*models.RequestRef, uuid.UUID, error) {
	item, err := o.s.store.FindLineItem(o.ctx, id)
	switch {
	case err == nil:
		if item.Completed || item.OnHold {
			return nil, uuid.Nil, nil
		}
		ref := item.Request
		return &ref, item.HoldingID, nil
	case !errors.Is(err, ErrNotFound):
		return nil, uuid.Nil, fmt.Errorf("find line item %s: %w", id, err)
	}

	if _, err := o.holding(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, uuid.Nil, nil
		}
		return nil, uuid.Nil, err
	}
	ref, err := o.s.store.ActiveRequestFor(o.ctx, id, models.RequestRef{})
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("find active request for holding %s: %w", id, err)
	}
	return ref, id, nil
}

// MarkItem advances the holding of one line item of a request by one step
// and derives the request status from its holdings.
func (s *Service) MarkItem(ctx context.Context, ref models.RequestRef, holdingID uuid.UUID) (*models.Holding, error) {
	var res *models.Holding
	err := s.run(ctx, func(o *op) error {
		r, err := o.request(ref)
		if err != nil {
			return err
		}
		if err := o.markItem(r, holdingID); err != nil {
			return err
		}
		res = models.ItemFor(r, holdingID).Holding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *op) markItem(r models.Request, holdingID uuid.UUID) error {
	li := models.ItemFor(r, holdingID)
	if li == nil {
		return fmt.Errorf("%w: %s in %s", ErrHoldingNotInRequest, holdingID, r.Ref())
	}
	if !r.IsActive() {
		return fmt.Errorf("%w: request is %s", ErrIllegalStatusTransition, r.StatusName())
	}
	if li.Completed {
		return fmt.Errorf("%w: line item is already completed", ErrIllegalStatusTransition)
	}
	if li.OnHold {
		return fmt.Errorf("%w: line item is on hold", ErrConflictingHold)
	}

	h := li.Holding
	next := h.Status.Next()
	o.setHoldingStatus(h, next, r)
	if next != models.HoldingStatusInUse {
		if _, err := o.resumeHold(h, r); err != nil {
			return err
		}
	}
	return o.deriveStatus(r)
}
