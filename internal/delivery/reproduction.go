package delivery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateReproduction registers a reproduction waiting for order details and
// reserves its holdings.
func (s *Service) CreateReproduction(ctx context.Context, req models.CreateReproductionRequest, opts CreateOptions) (*models.Reproduction, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoHoldings
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	var res *models.Reproduction
	err = s.run(ctx, func(o *op) error {
		r := models.NewReproduction(req.CustomerName, req.CustomerEmail, token)
		r.Date = o.now
		r.CreatedAt = o.now
		r.Comment = req.Comment

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
		res = r
		return o.claim(r, r.Status.HoldingStatus())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("reproduction_id", res.ID.String()).
		Int("items", len(res.Items)).
		Msg("reproduction created")
	return res, nil
}

// ApplyReproductionStatus moves a reproduction to status, applies the side
// effects of the new status and puts its holdings into the implied state.
func (s *Service) ApplyReproductionStatus(ctx context.Context, id uuid.UUID, status models.ReproductionStatus) (*models.Reproduction, error) {
	var res *models.Reproduction
	err := s.run(ctx, func(o *op) error {
		r, err := o.reproduction(id)
		if err != nil {
			return err
		}
		res = r
		_, err = o.setReproductionStatus(r, status, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EditReproduction updates a reproduction, merging its line items like
// EditReservation does.
func (s *Service) EditReproduction(ctx context.Context, id uuid.UUID, upd models.UpdateReproductionRequest, opts CreateOptions) (*models.Reproduction, error) {
	var res *models.Reproduction
	err := s.run(ctx, func(o *op) error {
		r, err := o.reproduction(id)
		if err != nil {
			return err
		}
		res = r

		if upd.CustomerName != nil {
			r.CustomerName = *upd.CustomerName
		}
		if upd.CustomerEmail != nil {
			r.CustomerEmail = *upd.CustomerEmail
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
			_, err := o.setReproductionStatus(r, *upd.Status, true)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteReproduction removes a reproduction, releasing its holdings while it
// still claims them.
func (s *Service) DeleteReproduction(ctx context.Context, id uuid.UUID) error {
	return s.run(ctx, func(o *op) error {
		r, err := o.reproduction(id)
		if err != nil {
			return err
		}
		if r.IsActive() {
			if err := o.releaseAll(r); err != nil {
				return err
			}
		}
		o.forget(r)
		if err := s.store.DeleteReproduction(o.ctx, id); err != nil {
			return fmt.Errorf("delete reproduction %s: %w", id, err)
		}
		return nil
	})
}

// CancelUnpaidReproductions cancels reproductions whose offer is older than
// maxAge without payment. It returns the number cancelled.
func (s *Service) CancelUnpaidReproductions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)
	pending, err := s.store.ReproductionsAwaitingPayment(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unpaid reproductions: %w", err)
	}

	cancelled := 0
	for _, r := range pending {
		if _, err := s.ApplyReproductionStatus(ctx, r.ID, models.ReproductionStatusCancelled); err != nil {
			s.logger.Error().Err(err).Str("reproduction_id", r.ID.String()).Msg("failed to cancel unpaid reproduction")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// SendPaymentReminders mails one reminder to customers whose offer is older
// than age. It returns the number of reminders sent.
func (s *Service) SendPaymentReminders(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-age)
	pending, err := s.store.ReproductionsAwaitingPayment(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unpaid reproductions: %w", err)
	}

	sent := 0
	for _, p := range pending {
		if p.OfferMailReminderSent {
			continue
		}
		err := s.run(ctx, func(o *op) error {
			r, err := o.reproduction(p.ID)
			if err != nil {
				return err
			}
			if r.OfferMailReminderSent {
				return nil
			}
			r.OfferMailReminderSent = true
			o.touch(r)
			o.notify("reproduction_payment_reminder", func(ctx context.Context) error {
				return s.notifier.ReproductionPaymentReminder(ctx, r)
			})
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Str("reproduction_id", p.ID.String()).Msg("failed to send payment reminder")
			continue
		}
		sent++
	}
	return sent, nil
}
