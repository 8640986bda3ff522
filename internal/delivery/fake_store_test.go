package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// fakeStore keeps committed state as copies, so nothing a test's service
// mutates in memory is visible until the operation flushed.
type fakeStore struct {
	mu sync.Mutex

	holdings      map[uuid.UUID]models.Holding
	reservations  map[uuid.UUID]*models.Reservation
	reproductions map[uuid.UUID]*models.Reproduction

	holdingSaves int
	// beforeSaveHolding runs before a holding write, with the lock held.
	beforeSaveHolding func(s *fakeStore, h *models.Holding)
	// afterClaimCheck runs once, without the lock, right after the next
	// active-request lookup answered.
	afterClaimCheck     func()
	failSaveReservation error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		holdings:      make(map[uuid.UUID]models.Holding),
		reservations:  make(map[uuid.UUID]*models.Reservation),
		reproductions: make(map[uuid.UUID]*models.Reproduction),
	}
}

func (s *fakeStore) addHolding(signature string) *models.Holding {
	h := models.NewHolding("10622/ARCH00001", signature)
	s.mu.Lock()
	s.holdings[h.ID] = *h
	s.mu.Unlock()
	return h
}

func (s *fakeStore) holding(id uuid.UUID) models.Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdings[id]
}

func (s *fakeStore) reservation(id uuid.UUID) *models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadReservation(id)
}

func (s *fakeStore) reproduction(id uuid.UUID) *models.Reproduction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadReproduction(id)
}

// putReservation stores r as committed state without any reconciliation.
func (s *fakeStore) putReservation(r *models.Reservation) {
	s.mu.Lock()
	s.reservations[r.ID] = copyReservation(r)
	s.mu.Unlock()
}

func copyItems(items []*models.LineItem) []*models.LineItem {
	out := make([]*models.LineItem, 0, len(items))
	for _, li := range items {
		c := *li
		c.Holding = nil
		out = append(out, &c)
	}
	return out
}

func copyReservation(r *models.Reservation) *models.Reservation {
	c := *r
	c.Items = copyItems(r.Items)
	return &c
}

func copyReproduction(r *models.Reproduction) *models.Reproduction {
	c := *r
	c.Items = copyItems(r.Items)
	return &c
}

func (s *fakeStore) attach(items []*models.LineItem) {
	for _, li := range items {
		h := s.holdings[li.HoldingID]
		li.Holding = &h
	}
}

func (s *fakeStore) loadReservation(id uuid.UUID) *models.Reservation {
	r, ok := s.reservations[id]
	if !ok {
		return nil
	}
	c := copyReservation(r)
	s.attach(c.Items)
	return c
}

func (s *fakeStore) loadReproduction(id uuid.UUID) *models.Reproduction {
	r, ok := s.reproductions[id]
	if !ok {
		return nil
	}
	c := copyReproduction(r)
	s.attach(c.Items)
	return c
}

type undoKey struct{}

// undoLog collects the inverse of every write made in one transaction.
type undoLog struct {
	steps []func()
}

// undo records how to revert a write. It must be called with the lock held.
func (s *fakeStore) undo(ctx context.Context, step func()) {
	if u, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		u.steps = append(u.steps, step)
	}
}

// WithTx reverts only the writes of a failed transaction, so an operation
// committed in between by another desk survives the rollback.
func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, u)); err != nil {
		s.mu.Lock()
		for i := len(u.steps) - 1; i >= 0; i-- {
			u.steps[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeStore) restoreReservation(id uuid.UUID) func() {
	prev, ok := s.reservations[id]
	return func() {
		if ok {
			s.reservations[id] = prev
		} else {
			delete(s.reservations, id)
		}
	}
}

func (s *fakeStore) restoreReproduction(id uuid.UUID) func() {
	prev, ok := s.reproductions[id]
	return func() {
		if ok {
			s.reproductions[id] = prev
		} else {
			delete(s.reproductions, id)
		}
	}
}

func (s *fakeStore) GetHolding(_ context.Context, id uuid.UUID) (*models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (s *fakeStore) SaveHolding(ctx context.Context, h *models.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeSaveHolding != nil {
		s.beforeSaveHolding(s, h)
	}
	stored, ok := s.holdings[h.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision != h.Revision {
		return ErrConcurrentModification
	}
	s.undo(ctx, func() { s.holdings[h.ID] = stored })
	h.Revision++
	s.holdings[h.ID] = *h
	s.holdingSaves++
	return nil
}

func (s *fakeStore) DeleteHolding(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.holdings[id]; ok {
		s.undo(ctx, func() { s.holdings[id] = prev })
	}
	delete(s.holdings, id)
	return nil
}

func (s *fakeStore) IsHoldingReferenced(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, li := range s.allItems() {
		if li.HoldingID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetReservation(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.loadReservation(id)
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) SaveReservation(ctx context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveReservation != nil {
		return s.failSaveReservation
	}
	s.undo(ctx, s.restoreReservation(r.ID))
	s.reservations[r.ID] = copyReservation(r)
	return nil
}

func (s *fakeStore) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[id]; !ok {
		return ErrNotFound
	}
	s.undo(ctx, s.restoreReservation(id))
	delete(s.reservations, id)
	return nil
}

func (s *fakeStore) NextQueueNumber(_ context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	y, m, d := day.Date()
	next := 1
	for _, r := range s.reservations {
		ry, rm, rd := r.Date.Date()
		if ry == y && rm == m && rd == d && r.QueueNo != nil && *r.QueueNo >= next {
			next = *r.QueueNo + 1
		}
	}
	return next, nil
}

func (s *fakeStore) GetReproduction(_ context.Context, id uuid.UUID) (*models.Reproduction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.loadReproduction(id)
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) GetReproductionByToken(_ context.Context, token string) (*models.Reproduction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reproductions {
		if r.Token == token {
			return s.loadReproduction(id), nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) SaveReproduction(ctx context.Context, r *models.Reproduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo(ctx, s.restoreReproduction(r.ID))
	s.reproductions[r.ID] = copyReproduction(r)
	return nil
}

func (s *fakeStore) DeleteReproduction(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reproductions[id]; !ok {
		return ErrNotFound
	}
	s.undo(ctx, s.restoreReproduction(id))
	delete(s.reproductions, id)
	return nil
}

func (s *fakeStore) ReproductionsAwaitingPayment(_ context.Context, before time.Time) ([]*models.Reproduction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reproduction
	for id, r := range s.reproductions {
		if r.Status != models.ReproductionStatusHasOrderDetails && r.Status != models.ReproductionStatusConfirmed {
			continue
		}
		if r.DateHasOrderDetails == nil || !r.DateHasOrderDetails.Before(before) {
			continue
		}
		out = append(out, s.loadReproduction(id))
	}
	return out, nil
}

type storedItem struct {
	*models.LineItem
	active  bool
	created time.Time
}

func (s *fakeStore) allItems() []storedItem {
	var items []storedItem
	for _, r := range s.reservations {
		for _, li := range r.Items {
			items = append(items, storedItem{LineItem: li, active: r.IsActive(), created: r.CreatedAt})
		}
	}
	for _, r := range s.reproductions {
		for _, li := range r.Items {
			items = append(items, storedItem{LineItem: li, active: r.IsActive(), created: r.CreatedAt})
		}
	}
	return items
}

func (s *fakeStore) FindLineItem(_ context.Context, id uuid.UUID) (*models.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, li := range s.allItems() {
		if li.ID == id {
			c := *li.LineItem
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) HasActiveRequestsFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (bool, error) {
	ref, err := s.ActiveRequestFor(ctx, holdingID, except)
	return ref != nil, err
}

func (s *fakeStore) ActiveRequestFor(ctx context.Context, holdingID uuid.UUID, except models.RequestRef) (*models.RequestRef, error) {
	ref := s.activeRequestFor(holdingID, except)
	if hook := s.takeAfterClaimCheck(); hook != nil {
		hook()
	}
	return ref, nil
}

// takeAfterClaimCheck returns and clears the afterClaimCheck hook.
func (s *fakeStore) takeAfterClaimCheck() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook := s.afterClaimCheck
	s.afterClaimCheck = nil
	return hook
}

func (s *fakeStore) activeRequestFor(holdingID uuid.UUID, except models.RequestRef) *models.RequestRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *storedItem
	for _, li := range s.allItems() {
		if li.HoldingID != holdingID || !li.active || !li.IsClaiming() || li.Request == except {
			continue
		}
		if found == nil || li.created.After(found.created) {
			li := li
			found = &li
		}
	}
	if found == nil {
		return nil
	}
	ref := found.Request
	return &ref
}

func (s *fakeStore) OnHoldRequestFor(_ context.Context, holdingID uuid.UUID) (*models.RequestRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, li := range s.allItems() {
		if li.HoldingID == holdingID && li.active && li.OnHold && !li.Completed {
			ref := li.Request
			return &ref, nil
		}
	}
	return nil, nil
}

// claimers counts active requests claiming each holding.
func (s *fakeStore) claimers() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, li := range s.allItems() {
		if li.active && li.IsClaiming() {
			counts[li.HoldingID]++
		}
	}
	return counts
}

type sentMail struct {
	name string
	to   string
	link string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) record(name, to, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{name: name, to: to, link: link})
	return n.err
}

func (n *fakeNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		names = append(names, m.name)
	}
	return names
}

func (n *fakeNotifier) ReservationConfirmed(_ context.Context, r *models.Reservation) error {
	return n.record("reservation_confirmed", r.VisitorEmail, "")
}

func (n *fakeNotifier) ReservationReady(_ context.Context, r *models.Reservation) error {
	return n.record("reservation_ready", r.VisitorEmail, "")
}

func (n *fakeNotifier) ReproductionPaymentAccepted(_ context.Context, r *models.Reproduction) error {
	return n.record("reproduction_payment_accepted", r.CustomerEmail, "")
}

func (n *fakeNotifier) ReproductionPaymentReminder(_ context.Context, r *models.Reproduction) error {
	return n.record("reproduction_payment_reminder", r.CustomerEmail, "")
}

func (n *fakeNotifier) ReproductionDelivered(_ context.Context, r *models.Reproduction, link string) error {
	return n.record("reproduction_delivered", r.CustomerEmail, link)
}

func (n *fakeNotifier) ReproductionCancelled(_ context.Context, r *models.Reproduction) error {
	return n.record("reproduction_cancelled", r.CustomerEmail, "")
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []models.HoldingStatusChange
}

func (p *fakePublisher) PublishHoldingChange(c models.HoldingStatusChange) {
	p.mu.Lock()
	p.changes = append(p.changes, c)
	p.mu.Unlock()
}

// fakeRecorder keeps the scan outcomes it was told about.
type fakeRecorder struct {
	nopRecorder
	scans []string
}

func (r *fakeRecorder) RecordScan(outcome string) {
	r.scans = append(r.scans, outcome)
}

type fakeLinks struct{}

func (fakeLinks) DownloadURL(_ context.Context, r *models.Reproduction) (string, error) {
	return "https://files.example.org/" + r.ID.String() + ".zip", nil
}

var errMailDown = errors.New("smtp unavailable")
