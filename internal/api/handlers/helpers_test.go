package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/api/middleware"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staff returns a principal holding perms.
func staff(perms ...auth.Permission) *middleware.Principal {
	granted := make([]string, len(perms))
	for i, p := range perms {
		granted[i] = string(p)
	}
	return &middleware.Principal{Subject: "staff-1", Name: "Desk Staff", Permissions: granted}
}

// newTestRouter returns an engine whose /api/v1 group runs as p.
func newTestRouter(p *middleware.Principal, register func(api *gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if p != nil {
			c.Set(string(middleware.PrincipalContextKey), p)
		}
		c.Next()
	})
	register(api)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", w.Body.String(), err)
	}
	return v
}

// fakeService records calls and answers with canned results. It implements
// every service interface of this package.
type fakeService struct {
	err error

	reservation  *models.Reservation
	reproduction *models.Reproduction
	holding      *models.Holding
	scan         *delivery.ScanResult
	labels       []string
	ref          models.RequestRef
	bulk         []delivery.BulkResult

	lastOpts       delivery.CreateOptions
	lastRef        models.RequestRef
	lastID         uuid.UUID
	lastHoldingID  uuid.UUID
	lastStatus     string
	lastAlways     bool
	lastIdentifier string
}

func (f *fakeService) CreateReservation(_ context.Context, req models.CreateReservationRequest, opts delivery.CreateOptions) (*models.Reservation, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	r := models.NewReservation(req.VisitorName, req.VisitorEmail, req.Date)
	return r, nil
}

func (f *fakeService) ApplyReservationStatus(_ context.Context, id uuid.UUID, status models.ReservationStatus) (*models.Reservation, error) {
	f.lastID, f.lastStatus = id, string(status)
	if f.err != nil {
		return nil, f.err
	}
	return f.reservation, nil
}

func (f *fakeService) EditReservation(_ context.Context, id uuid.UUID, _ models.UpdateReservationRequest, opts delivery.CreateOptions) (*models.Reservation, error) {
	f.lastID, f.lastOpts = id, opts
	if f.err != nil {
		return nil, f.err
	}
	return f.reservation, nil
}

func (f *fakeService) DeleteReservation(_ context.Context, id uuid.UUID) error {
	f.lastID = id
	return f.err
}

func (f *fakeService) BulkApplyReservationStatus(_ context.Context, _ []uuid.UUID, status models.ReservationStatus) []delivery.BulkResult {
	f.lastStatus = string(status)
	return f.bulk
}

func (f *fakeService) MarkPrinted(_ context.Context, ref models.RequestRef, always bool) ([]string, error) {
	f.lastRef, f.lastAlways = ref, always
	return f.labels, f.err
}

func (f *fakeService) CreateReproduction(_ context.Context, req models.CreateReproductionRequest, opts delivery.CreateOptions) (*models.Reproduction, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return models.NewReproduction(req.CustomerName, req.CustomerEmail, "token"), nil
}

func (f *fakeService) ApplyReproductionStatus(_ context.Context, id uuid.UUID, status models.ReproductionStatus) (*models.Reproduction, error) {
	f.lastID, f.lastStatus = id, string(status)
	if f.err != nil {
		return nil, f.err
	}
	return f.reproduction, nil
}

func (f *fakeService) EditReproduction(_ context.Context, id uuid.UUID, _ models.UpdateReproductionRequest, opts delivery.CreateOptions) (*models.Reproduction, error) {
	f.lastID, f.lastOpts = id, opts
	if f.err != nil {
		return nil, f.err
	}
	return f.reproduction, nil
}

func (f *fakeService) DeleteReproduction(_ context.Context, id uuid.UUID) error {
	f.lastID = id
	return f.err
}

func (f *fakeService) SetHoldingStatus(_ context.Context, id uuid.UUID, status models.HoldingStatus) (*models.Holding, error) {
	f.lastHoldingID, f.lastStatus = id, string(status)
	if f.err != nil {
		return nil, f.err
	}
	h := *f.holding
	h.Status = status
	return &h, nil
}

func (f *fakeService) DeleteHolding(_ context.Context, id uuid.UUID) error {
	f.lastHoldingID = id
	return f.err
}

func (f *fakeService) PlaceOnHold(_ context.Context, id uuid.UUID) (models.RequestRef, error) {
	f.lastHoldingID = id
	return f.ref, f.err
}

func (f *fakeService) ReleaseHold(_ context.Context, id uuid.UUID) (models.RequestRef, error) {
	f.lastHoldingID = id
	return f.ref, f.err
}

func (f *fakeService) Scan(_ context.Context, identifier string) (*delivery.ScanResult, error) {
	f.lastIdentifier = identifier
	return f.scan, f.err
}

func (f *fakeService) MarkItem(_ context.Context, ref models.RequestRef, holdingID uuid.UUID) (*models.Holding, error) {
	f.lastRef, f.lastHoldingID = ref, holdingID
	return f.holding, f.err
}

// fakeStore serves reads from maps.
type fakeStore struct {
	err error

	reservations  map[uuid.UUID]*models.Reservation
	reproductions map[uuid.UUID]*models.Reproduction
	holdings      map[uuid.UUID]*models.Holding
	created       []*models.Holding

	lastReservationFilter  models.ReservationFilter
	lastReproductionFilter models.ReproductionFilter
	lastHoldingFilter      models.HoldingFilter
}

func (f *fakeStore) GetReservation(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	if r, ok := f.reservations[id]; ok {
		return r, nil
	}
	return nil, delivery.ErrNotFound
}

func (f *fakeStore) ListReservations(_ context.Context, filter models.ReservationFilter) ([]*models.Reservation, int, error) {
	f.lastReservationFilter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.Reservation
	for _, r := range f.reservations {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetReproduction(_ context.Context, id uuid.UUID) (*models.Reproduction, error) {
	if r, ok := f.reproductions[id]; ok {
		return r, nil
	}
	return nil, delivery.ErrNotFound
}

func (f *fakeStore) GetReproductionByToken(_ context.Context, token string) (*models.Reproduction, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.reproductions {
		if r.Token == token {
			return r, nil
		}
	}
	return nil, delivery.ErrNotFound
}

func (f *fakeStore) ListReproductions(_ context.Context, filter models.ReproductionFilter) ([]*models.Reproduction, int, error) {
	f.lastReproductionFilter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.Reproduction
	for _, r := range f.reproductions {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeStore) CreateHolding(_ context.Context, h *models.Holding) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, h)
	return nil
}

func (f *fakeStore) GetHolding(_ context.Context, id uuid.UUID) (*models.Holding, error) {
	if h, ok := f.holdings[id]; ok {
		return h, nil
	}
	return nil, delivery.ErrNotFound
}

func (f *fakeStore) ListHoldings(_ context.Context, filter models.HoldingFilter) ([]*models.Holding, int, error) {
	f.lastHoldingFilter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.Holding
	for _, h := range f.holdings {
		out = append(out, h)
	}
	return out, len(out), nil
}
