package delivery

import (
	"context"
	"fmt"

	"github.com/socialhistoryservices/delivery/internal/models"
)

// checkReservationTransition enforces forward progress. ACTIVE may go back to
// PENDING to correct a mistaken hand-out.
func checkReservationTransition(from, to models.ReservationStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown reservation status %q", ErrIllegalStatusTransition, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: reservation is %s", ErrIllegalStatusTransition, from)
	}
	if from == models.ReservationStatusActive && to == models.ReservationStatusPending {
		return nil
	}
	if to.Ordinal() < from.Ordinal() {
		return fmt.Errorf("%w: reservation %s -> %s", ErrIllegalStatusTransition, from, to)
	}
	return nil
}

// checkReproductionTransition enforces forward progress. Skipping ahead is
// allowed. A completed reproduction can only be delivered.
func checkReproductionTransition(from, to models.ReproductionStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown reproduction status %q", ErrIllegalStatusTransition, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: reproduction is %s", ErrIllegalStatusTransition, from)
	}
	if from == models.ReproductionStatusCompleted && to != models.ReproductionStatusDelivered {
		return fmt.Errorf("%w: completed reproduction can only be delivered", ErrIllegalStatusTransition)
	}
	if to.Ordinal() < from.Ordinal() {
		return fmt.Errorf("%w: reproduction %s -> %s", ErrIllegalStatusTransition, from, to)
	}
	return nil
}

// ensureClaimable fails when a request other than r claims h.
func (o *op) ensureClaimable(r models.Request, h *models.Holding) error {
	other, err := o.s.store.ActiveRequestFor(o.ctx, h.ID, r.Ref())
	if err != nil {
		return fmt.Errorf("find active request for holding %s: %w", h.ID, err)
	}
	if other != nil {
		return fmt.Errorf("%w: holding %s is held by %s", ErrConflictingHold, h.Signature, other)
	}
	return nil
}

// claim puts every open line item of r into the holding status implied by
// its request status.
func (o *op) claim(r models.Request, status models.HoldingStatus) error {
	for _, li := range r.LineItems() {
		if !li.IsClaiming() {
			continue
		}
		if err := o.ensureClaimable(r, li.Holding); err != nil {
			return err
		}
		o.setHoldingStatus(li.Holding, status, r)
		// The claim check above is a read; saving the holding checks its
		// revision even when the status did not change.
		o.markHolding(li.Holding)
	}
	return nil
}

// releaseAll completes every open line item of r and gives its holding back.
func (o *op) releaseAll(r models.Request) error {
	for _, li := range r.LineItems() {
		if li.Completed {
			continue
		}
		li.Completed = true
		if li.OnHold {
			// The holding is with another request; nothing to give back.
			li.OnHold = false
			continue
		}
		if err := o.release(r, li.Holding); err != nil {
			return err
		}
	}
	return nil
}

// release gives h back after r stopped claiming it. A request that had h on
// hold gets it back in use. Otherwise h becomes available unless another
// active request claims it.
func (o *op) release(r models.Request, h *models.Holding) error {
	resumed, err := o.resumeHold(h, r)
	if err != nil || resumed {
		return err
	}
	busy, err := o.s.store.HasActiveRequestsFor(o.ctx, h.ID, r.Ref())
	if err != nil {
		return fmt.Errorf("check active requests for holding %s: %w", h.ID, err)
	}
	if busy {
		return nil
	}
	o.setHoldingStatus(h, models.HoldingStatusAvailable, r)
	return nil
}

// resumeHold hands h back to the request that has it on hold, completing the
// line item of active. It reports whether a hold existed.
func (o *op) resumeHold(h *models.Holding, active models.Request) (bool, error) {
	ref, err := o.s.store.OnHoldRequestFor(o.ctx, h.ID)
	if err != nil {
		return false, fmt.Errorf("find on-hold request for holding %s: %w", h.ID, err)
	}
	if ref == nil || (active != nil && *ref == active.Ref()) {
		return false, nil
	}
	held, err := o.request(*ref)
	if err != nil {
		return false, err
	}
	item := models.ItemFor(held, h.ID)
	if item == nil || !item.OnHold {
		return false, nil
	}

	if active != nil {
		if li := models.ItemFor(active, h.ID); li != nil {
			li.Completed = true
			o.touch(active)
		}
	}
	item.OnHold = false
	o.touch(held)
	o.setHoldingStatus(h, models.HoldingStatusInUse, held)
	o.markHolding(h)
	return true, nil
}

// setReservationStatus moves r to status. With reconcile the holdings are put
// into the implied state; without it only the request status changes.
func (o *op) setReservationStatus(r *models.Reservation, status models.ReservationStatus, reconcile bool) (bool, error) {
	if r.Status == status {
		return false, nil
	}
	if err := checkReservationTransition(r.Status, status); err != nil {
		return false, err
	}
	from := string(r.Status)
	r.Status = status
	o.touch(r)
	o.recordTransition(r, from)

	if status.IsTerminal() {
		return true, o.releaseAll(r)
	}
	if !reconcile {
		return true, nil
	}
	return true, o.claim(r, status.HoldingStatus())
}

// setReproductionStatus moves r to status and applies the lifecycle side
// effects of the new status.
func (o *op) setReproductionStatus(r *models.Reproduction, status models.ReproductionStatus, reconcile bool) (bool, error) {
	if r.Status == status {
		return false, nil
	}
	if err := checkReproductionTransition(r.Status, status); err != nil {
		return false, err
	}
	from := string(r.Status)
	r.Status = status
	o.touch(r)
	o.recordTransition(r, from)

	switch status {
	case models.ReproductionStatusHasOrderDetails:
		now := o.now
		r.DateHasOrderDetails = &now
	case models.ReproductionStatusActive:
		now := o.now
		r.DatePaymentAccepted = &now
		o.notify("reproduction_payment_accepted", func(ctx context.Context) error {
			return o.s.notifier.ReproductionPaymentAccepted(ctx, r)
		})
	case models.ReproductionStatusDelivered:
		o.notify("reproduction_delivered", func(ctx context.Context) error {
			link := ""
			if o.s.links != nil {
				var err error
				if link, err = o.s.links.DownloadURL(ctx, r); err != nil {
					return fmt.Errorf("sign download link: %w", err)
				}
			}
			return o.s.notifier.ReproductionDelivered(ctx, r, link)
		})
	case models.ReproductionStatusCancelled:
		o.notify("reproduction_cancelled", func(ctx context.Context) error {
			return o.s.notifier.ReproductionCancelled(ctx, r)
		})
	}

	if status.ReleasesHoldings() {
		return true, o.releaseAll(r)
	}
	if !reconcile {
		return true, nil
	}
	return true, o.claim(r, status.HoldingStatus())
}

// deriveStatus recomputes the status of r from the state of its holdings
// after one of them moved. Items whose holding is back on the shelf are
// completed.
func (o *op) deriveStatus(r models.Request) error {
	complete, reserved := true, true
	for _, li := range r.LineItems() {
		if !li.Completed && !li.OnHold && li.Holding.Status == models.HoldingStatusAvailable {
			li.Completed = true
			o.touch(r)
		}
		if li.Completed {
			// A returned item means the request was handed out.
			reserved = false
			continue
		}
		complete = false
		if li.OnHold || li.Holding.Status != models.HoldingStatusReserved {
			reserved = false
		}
	}

	switch r := r.(type) {
	case *models.Reservation:
		status := models.ReservationStatusActive
		switch {
		case complete:
			status = models.ReservationStatusCompleted
		case reserved:
			status = models.ReservationStatusPending
		}
		_, err := o.setReservationStatus(r, status, false)
		return err
	case *models.Reproduction:
		if !complete {
			return nil
		}
		_, err := o.setReproductionStatus(r, models.ReproductionStatusCompleted, false)
		return err
	}
	return nil
}
