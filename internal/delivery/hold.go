package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// PlaceOnHold suspends the claim of the request that has the holding in use,
// so that another request can use it in between. The suspended request gets
// the holding back once it leaves use.
func (s *Service) PlaceOnHold(ctx context.Context, holdingID uuid.UUID) (models.RequestRef, error) {
	var ref models.RequestRef
	err := s.run(ctx, func(o *op) error {
		h, err := o.holding(holdingID)
		if err != nil {
			return err
		}

		held, err := s.store.OnHoldRequestFor(o.ctx, h.ID)
		if err != nil {
			return fmt.Errorf("find on-hold request for holding %s: %w", h.ID, err)
		}
		if held != nil {
			return fmt.Errorf("%w: holding %s is already on hold for %s", ErrConflictingHold, h.Signature, held)
		}

		active, err := s.store.ActiveRequestFor(o.ctx, h.ID, models.RequestRef{})
		if err != nil {
			return fmt.Errorf("find active request for holding %s: %w", h.ID, err)
		}
		if active == nil {
			return fmt.Errorf("%w: holding %s is not claimed", ErrNoActiveHold, h.Signature)
		}
		r, err := o.request(*active)
		if err != nil {
			return err
		}
		item := models.ItemFor(r, holdingID)
		if item == nil {
			return fmt.Errorf("%w: %s", ErrHoldingNotInRequest, active)
		}
		if h.Status != models.HoldingStatusInUse {
			return fmt.Errorf("%w: holding %s is %s, not in use", ErrNoActiveHold, h.Signature, h.Status)
		}

		item.OnHold = true
		o.touch(r)
		o.markHolding(h)
		ref = *active
		return nil
	})
	if err != nil {
		return models.RequestRef{}, err
	}

	s.logger.Info().
		Str("holding_id", holdingID.String()).
		Str("request", ref.String()).
		Msg("holding placed on hold")
	return ref, nil
}

// ReleaseHold ends the hold on a holding: the request using it in between is
// done with it and the suspended request gets it back in use.
func (s *Service) ReleaseHold(ctx context.Context, holdingID uuid.UUID) (models.RequestRef, error) {
	var ref models.RequestRef
	err := s.run(ctx, func(o *op) error {
		h, err := o.holding(holdingID)
		if err != nil {
			return err
		}

		held, err := s.store.OnHoldRequestFor(o.ctx, h.ID)
		if err != nil {
			return fmt.Errorf("find on-hold request for holding %s: %w", h.ID, err)
		}
		if held == nil {
			return fmt.Errorf("%w: holding %s is not on hold", ErrNoActiveHold, h.Signature)
		}

		var active models.Request
		activeRef, err := s.store.ActiveRequestFor(o.ctx, h.ID, *held)
		if err != nil {
			return fmt.Errorf("find active request for holding %s: %w", h.ID, err)
		}
		if activeRef != nil {
			if active, err = o.request(*activeRef); err != nil {
				return err
			}
		}

		if _, err := o.resumeHold(h, active); err != nil {
			return err
		}
		if active != nil {
			if err := o.deriveStatus(active); err != nil {
				return err
			}
		}
		ref = *held
		return nil
	})
	if err != nil {
		return models.RequestRef{}, err
	}

	s.logger.Info().
		Str("holding_id", holdingID.String()).
		Str("request", ref.String()).
		Msg("hold released")
	return ref, nil
}

// SetHoldingStatus overrides the status of a holding. A holding leaving use
// goes back to a request that has it on hold, and the request claiming it has
// its status derived again.
func (s *Service) SetHoldingStatus(ctx context.Context, holdingID uuid.UUID, status models.HoldingStatus) (*models.Holding, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown holding status %q", ErrIllegalStatusTransition, status)
	}

	var res *models.Holding
	err := s.run(ctx, func(o *op) error {
		if _, err := o.holding(holdingID); err != nil {
			return err
		}

		var active models.Request
		activeRef, err := s.store.ActiveRequestFor(o.ctx, holdingID, models.RequestRef{})
		if err != nil {
			return fmt.Errorf("find active request for holding %s: %w", holdingID, err)
		}
		if activeRef != nil {
			if active, err = o.request(*activeRef); err != nil {
				return err
			}
		}

		h := o.holdings[holdingID]
		o.setHoldingStatus(h, status, active)
		if status != models.HoldingStatusInUse {
			if _, err := o.resumeHold(h, active); err != nil {
				return err
			}
		}
		if active != nil {
			if err := o.deriveStatus(active); err != nil {
				return err
			}
		}
		res = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteHolding removes a holding that no request references.
func (s *Service) DeleteHolding(ctx context.Context, holdingID uuid.UUID) error {
	return s.run(ctx, func(o *op) error {
		if _, err := o.holding(holdingID); err != nil {
			return err
		}
		used, err := s.store.IsHoldingReferenced(o.ctx, holdingID)
		if err != nil {
			return fmt.Errorf("check holding references: %w", err)
		}
		if used {
			return ErrHoldingInUse
		}
		if err := s.store.DeleteHolding(o.ctx, holdingID); err != nil {
			return fmt.Errorf("delete holding %s: %w", holdingID, err)
		}
		return nil
	})
}
