package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// CreateOptions controls checks on new and edited requests.
type CreateOptions struct {
	// AllowRestricted lets staff request holdings that are closed for visitors.
	AllowRestricted bool
	// RequireAvailable limits visitor submissions to holdings that are
	// available and open.
	RequireAvailable bool
}

// CreateReservation registers a pending reservation, reserves its holdings and
// gives it the next queue number of its visit day.
func (s *Service) CreateReservation(ctx context.Context, req models.CreateReservationRequest, opts CreateOptions) (*models.Reservation, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoHoldings
	}

	var res *models.Reservation
	err := s.run(ctx, func(o *op) error {
		r := models.NewReservation(req.VisitorName, req.VisitorEmail, req.Date)
		r.CreatedAt = o.now
		r.ReturnDate = req.ReturnDate
		r.Special = req.Special
		r.Comment = req.Comment

		queueNo, err := s.store.NextQueueNumber(o.ctx, r.Date)
		if err != nil {
			return fmt.Errorf("next queue number: %w", err)
		}
		r.QueueNo = &queueNo

		holdings, err := o.resolveItems(req.Items, opts)
		if err != nil {
			return err
		}
		for i, h := range holdings {
			r.AddItem(h, req.Items[i].Comment)
		}
		if err := o.track(r); err != nil {
			return err
		}
		if err := o.claim(r, r.Status.HoldingStatus()); err != nil {
			return err
		}

		o.notify("reservation_confirmed", func(ctx context.Context) error {
			return s.notifier.ReservationConfirmed(ctx, r)
		})
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("reservation_id", res.ID.String()).
		Int("items", len(res.Items)).
		Msg("reservation created")
	return res, nil
}

// ApplyReservationStatus moves a reservation to status and puts its holdings
// into the implied state. Applying the current status again changes nothing.
func (s *Service) ApplyReservationStatus(ctx context.Context, id uuid.UUID, status models.ReservationStatus) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.run(ctx, func(o *op) error {
		r, err := o.reservation(id)
		if err != nil {
			return err
		}
		res = r
		return o.applyReservationStatus(r, status)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *op) applyReservationStatus(r *models.Reservation, status models.ReservationStatus) error {
	changed, err := o.setReservationStatus(r, status, true)
	if err != nil || !changed {
		return err
	}
	if status == models.ReservationStatusActive {
		o.notify("reservation_ready", func(ctx context.Context) error {
			return o.s.notifier.ReservationReady(ctx, r)
		})
	}
	return nil
}

// EditReservation updates a reservation. When items are given they replace
// the line items: kept holdings are merged, dropped ones are released and new
// ones are claimed.
func (s *Service) EditReservation(ctx context.Context, id uuid.UUID, upd models.UpdateReservationRequest, opts CreateOptions) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.run(ctx, func(o *op) error {
		r, err := o.reservation(id)
		if err != nil {
			return err
		}
		res = r

		if upd.VisitorName != nil {
			r.VisitorName = *upd.VisitorName
		}
		if upd.VisitorEmail != nil {
			r.VisitorEmail = *upd.VisitorEmail
		}
		if upd.Date != nil {
			moved := upd.Date.Format(time.DateOnly) != r.Date.Format(time.DateOnly)
			r.Date = *upd.Date
			if moved {
				// Queue numbers count per visit day.
				queueNo, err := s.store.NextQueueNumber(o.ctx, r.Date)
				if err != nil {
					return fmt.Errorf("next queue number: %w", err)
				}
				r.QueueNo = &queueNo
			}
		}
		if upd.ReturnDate != nil {
			r.ReturnDate = upd.ReturnDate
		}
		if upd.Special != nil {
			r.Special = *upd.Special
		}
		if upd.Comment != nil {
			r.Comment = *upd.Comment
		}
		o.touch(r)

		if upd.Items != nil {
			items, err := o.mergeItems(r, r.Items, upd.Items, opts)
			if err != nil {
				return err
			}
			r.Items = items
			if r.IsActive() {
				if err := o.claim(r, r.Status.HoldingStatus()); err != nil {
					return err
				}
			}
		}

		if upd.Status != nil {
			return o.applyReservationStatus(r, *upd.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteReservation removes a reservation. Holdings of a reservation that is
// not completed are released first.
func (s *Service) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	return s.run(ctx, func(o *op) error {
		r, err := o.reservation(id)
		if err != nil {
			return err
		}
		if r.IsActive() {
			if err := o.releaseAll(r); err != nil {
				return err
			}
		}
		o.forget(r)
		if err := s.store.DeleteReservation(o.ctx, id); err != nil {
			return fmt.Errorf("delete reservation %s: %w", id, err)
		}
		return nil
	})
}

// BulkResult is the outcome for one request of a bulk operation.
type BulkResult struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error,omitempty"`
}

// BulkApplyReservationStatus applies status to every reservation in its own
// transaction and reports each outcome.
func (s *Service) BulkApplyReservationStatus(ctx context.Context, ids []uuid.UUID, status models.ReservationStatus) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		result := BulkResult{ID: id}
		if _, err := s.ApplyReservationStatus(ctx, id, status); err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}
