// Package delivery reconciles holding availability with the reservations and
// reproductions that claim them.
//
// Every public operation runs in one store transaction. Holdings touched by an
// operation are shared between all requests loaded in it and written once at
// the end, guarded by their revision. Mails, feed events and metrics are only
// emitted after the transaction committed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/clock"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// Service applies request status changes and scans to holdings.
type Service struct {
	store    Store
	notifier Notifier
	events   Publisher
	metrics  Recorder
	links    LinkSigner
	clock    clock.Clock
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the mailer used after status changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPublisher sets the receiver of committed holding changes.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithLinkSigner sets the source of download links for delivered reproductions.
func WithLinkSigner(l LinkSigner) Option {
	return func(s *Service) {
		s.links = l
	}
}

// WithClock overrides the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService creates a new reconciliation service.
func NewService(store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		events:   nopPublisher{},
		metrics:  nopRecorder{},
		clock:    clock.NewSystem(),
		logger:   logger.With().Str("component", "delivery").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn in a transaction and dispatches its effects after commit.
func (s *Service) run(ctx context.Context, fn func(o *op) error) error {
	o := &op{s: s}
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		o.reset(txCtx)
		if err := fn(o); err != nil {
			return err
		}
		return o.flush()
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConcurrentModification):
			s.metrics.RecordConflict("revision")
		case errors.Is(err, ErrConflictingHold):
			s.metrics.RecordConflict("hold")
		}
		return err
	}
	o.dispatch(ctx)
	return nil
}

type transition struct {
	ref      models.RequestRef
	from, to string
}

// op is the working set of one transaction.
type op struct {
	s   *Service
	ctx context.Context
	now time.Time

	holdings     map[uuid.UUID]*models.Holding
	dirtyHolding []uuid.UUID
	changes      []models.HoldingStatusChange

	requests     map[models.RequestRef]models.Request
	dirtyRequest []models.RequestRef

	transitions []transition
	after       []func(ctx context.Context)
}

func (o *op) reset(ctx context.Context) {
	*o = op{
		s:        o.s,
		ctx:      ctx,
		now:      o.s.clock.Now(),
		holdings: make(map[uuid.UUID]*models.Holding),
		requests: make(map[models.RequestRef]models.Request),
	}
}

// holding returns the shared instance of a holding, loading it on first use.
func (o *op) holding(id uuid.UUID) (*models.Holding, error) {
	if h, ok := o.holdings[id]; ok {
		return h, nil
	}
	h, err := o.s.store.GetHolding(o.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get holding %s: %w", id, err)
	}
	o.holdings[id] = h
	return h, nil
}

// adopt points every line item at the shared holding instances.
func (o *op) adopt(items []*models.LineItem) error {
	for _, li := range items {
		if h, ok := o.holdings[li.HoldingID]; ok {
			li.Holding = h
			continue
		}
		if li.Holding == nil {
			h, err := o.holding(li.HoldingID)
			if err != nil {
				return err
			}
			li.Holding = h
			continue
		}
		o.holdings[li.HoldingID] = li.Holding
	}
	return nil
}

func (o *op) reservation(id uuid.UUID) (*models.Reservation, error) {
	ref := models.RequestRef{Kind: models.RequestKindReservation, ID: id}
	if r, ok := o.requests[ref]; ok {
		return r.(*models.Reservation), nil
	}
	r, err := o.s.store.GetReservation(o.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	if err := o.adopt(r.Items); err != nil {
		return nil, err
	}
	o.requests[ref] = r
	return r, nil
}

func (o *op) reproduction(id uuid.UUID) (*models.Reproduction, error) {
	ref := models.RequestRef{Kind: models.RequestKindReproduction, ID: id}
	if r, ok := o.requests[ref]; ok {
		return r.(*models.Reproduction), nil
	}
	r, err := o.s.store.GetReproduction(o.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reproduction %s: %w", id, err)
	}
	if err := o.adopt(r.Items); err != nil {
		return nil, err
	}
	o.requests[ref] = r
	return r, nil
}

func (o *op) request(ref models.RequestRef) (models.Request, error) {
	switch ref.Kind {
	case models.RequestKindReservation:
		return o.reservation(ref.ID)
	case models.RequestKindReproduction:
		return o.reproduction(ref.ID)
	}
	return nil, fmt.Errorf("unknown request kind %q: %w", ref.Kind, ErrNotFound)
}

// track registers a request created in this operation.
func (o *op) track(r models.Request) error {
	if err := o.adopt(r.LineItems()); err != nil {
		return err
	}
	o.requests[r.Ref()] = r
	o.touch(r)
	return nil
}

// touch marks r for saving at the end of the operation.
func (o *op) touch(r models.Request) {
	ref := r.Ref()
	for _, d := range o.dirtyRequest {
		if d == ref {
			return
		}
	}
	o.dirtyRequest = append(o.dirtyRequest, ref)
}

// setHoldingStatus changes h and records the change on behalf of by.
func (o *op) setHoldingStatus(h *models.Holding, status models.HoldingStatus, by models.Request) {
	if h.Status == status {
		return
	}
	change := models.HoldingStatusChange{
		HoldingID: h.ID,
		Signature: h.Signature,
		Floor:     h.Floor,
		From:      h.Status,
		To:        status,
		At:        o.now,
	}
	if by != nil {
		ref := by.Ref()
		change.Request = &ref
	}
	h.SetStatus(status)
	o.changes = append(o.changes, change)
	o.markHolding(h)
}

// markHolding marks h for saving at the end of the operation.
func (o *op) markHolding(h *models.Holding) {
	for _, id := range o.dirtyHolding {
		if id == h.ID {
			return
		}
	}
	o.dirtyHolding = append(o.dirtyHolding, h.ID)
}

func (o *op) recordTransition(r models.Request, from string) {
	o.transitions = append(o.transitions, transition{ref: r.Ref(), from: from, to: r.StatusName()})
}

// notify queues a mail for after commit.
func (o *op) notify(name string, fn func(ctx context.Context) error) {
	o.after = append(o.after, func(ctx context.Context) {
		err := fn(ctx)
		o.s.metrics.RecordNotification(name, err)
		if err != nil {
			o.s.logger.Error().Err(err).Str("notification", name).Msg("failed to send notification")
		}
	})
}

// flush writes every changed holding and request.
func (o *op) flush() error {
	for _, id := range o.dirtyHolding {
		h := o.holdings[id]
		h.UpdatedAt = o.now
		if err := o.s.store.SaveHolding(o.ctx, h); err != nil {
			return fmt.Errorf("save holding %s: %w", h.ID, err)
		}
	}
	for _, ref := range o.dirtyRequest {
		switch r := o.requests[ref].(type) {
		case *models.Reservation:
			r.UpdatedAt = o.now
			if err := o.s.store.SaveReservation(o.ctx, r); err != nil {
				return fmt.Errorf("save reservation %s: %w", r.ID, err)
			}
		case *models.Reproduction:
			r.UpdatedAt = o.now
			if err := o.s.store.SaveReproduction(o.ctx, r); err != nil {
				return fmt.Errorf("save reproduction %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

// dispatch emits the effects of a committed operation.
func (o *op) dispatch(ctx context.Context) {
	for _, t := range o.transitions {
		o.s.metrics.RecordTransition(t.ref.Kind, t.from, t.to)
		o.s.logger.Info().
			Str("kind", string(t.ref.Kind)).
			Str("request_id", t.ref.ID.String()).
			Str("from", t.from).
			Str("to", t.to).
			Msg("request status changed")
	}
	for _, c := range o.changes {
		o.s.metrics.RecordHoldingChange(c.From, c.To)
		o.s.events.PublishHoldingChange(c)
	}
	for _, fn := range o.after {
		fn(ctx)
	}
}
