package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// HoldingRepository loads and stores holdings.
type HoldingRepository interface {
	GetHolding(ctx context.Context, id uuid.UUID) (*models.Holding, error)
	// SaveHolding writes h if its revision is unchanged in the store and
	// increments h.Revision. A lost race returns ErrConcurrentModification.
	SaveHolding(ctx context.Context, h *models.Holding) error
	DeleteHolding(ctx context.Context, id uuid.UUID) error
	IsHoldingReferenced(ctx context.Context, id uuid.UUID) (bool, error)
}

// RequestRepository loads and stores reservations and reproductions.
// Loaded requests carry their line items with holdings attached.
type RequestRepository interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	SaveReservation(ctx context.Context, r *models.Reservation) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error
	NextQueueNumber(ctx context.Context, day time.Time) (int, error)

	GetReproduction(ctx context.Context, id uuid.UUID) (*models.Reproduction, error)
	GetReproductionByToken(ctx context.Context, token string) (*models.Reproduction, error)
	SaveReproduction(ctx context.Context, r *models.Reproduction) error
	DeleteReproduction(ctx context.Context, id uuid.UUID) error
	// ReproductionsAwaitingPayment returns reproductions that received an
	// offer before the cutoff and were neither paid nor cancelled.
	ReproductionsAwaitingPayment(ctx context.Context, before time.Time) ([]*models.Reproduction, error)

	// FindLineItem returns the line item with the given id, of either request kind.
	FindLineItem(ctx context.Context, id uuid.UUID) (*models.LineItem, error)
	// HasActiveRequestsFor reports whether an active request other than
	// except claims the holding through an open, not on-hold line item.
	HasActiveRequestsFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (bool, error)
	// ActiveRequestFor returns the most recent request other than except
	// claiming the holding, or nil.
	ActiveRequestFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (*models.RequestRef, error)
	// OnHoldRequestFor returns the request that has the holding on hold, or nil.
	OnHoldRequestFor(ctx context.Context, holdingID uuid.UUID) (*models.RequestRef, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	HoldingRepository
	RequestRepository
	// WithTx runs fn in one transaction. Store calls made with the context
	// passed to fn join that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
