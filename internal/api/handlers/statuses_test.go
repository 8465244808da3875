package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketmanager/internal/models"
	"marketmanager/internal/statusstore"
)

type fakeStatusRepo struct {
	statuses map[int]*models.ExchangeStatus
	claimErr error
}

func (f *fakeStatusRepo) EnsureExists(exchangeID int) error {
	if _, ok := f.statuses[exchangeID]; !ok {
		f.statuses[exchangeID] = &models.ExchangeStatus{ExchangeID: exchangeID}
	}
	return nil
}
func (f *fakeStatusRepo) GetByExchangeID(exchangeID int) (*models.ExchangeStatus, error) {
	return f.statuses[exchangeID], nil
}
func (f *fakeStatusRepo) GetAllRunning() ([]*models.ExchangeStatus, error) { return nil, nil }
func (f *fakeStatusRepo) Claim(int, string, time.Time) error              { return f.claimErr }
func (f *fakeStatusRepo) Release(int, time.Time) error                   { return nil }
func (f *fakeStatusRepo) Fail(int, string) error                         { return nil }
func (f *fakeStatusRepo) SetTimeout(int, int) error                      { return nil }

func TestStatusesHandlerListFiltersByRunning(t *testing.T) {
	exchanges := []*models.Exchange{{ID: 1}, {ID: 2}}
	statusRepo := &fakeStatusRepo{statuses: map[int]*models.ExchangeStatus{
		1: {ExchangeID: 1, Running: true},
		2: {ExchangeID: 2, Running: false},
	}}
	store := statusstore.New(&fakeExchangeRepo{all: exchanges}, statusRepo, noopMarketRepo{}, noopFiatPriceRepo{})
	h := NewStatusesHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/exchange_statuses?running=true", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeListResponse(t, rec)
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
}

func TestStatusesHandlerListEnsuresRowsForEveryExchange(t *testing.T) {
	exchanges := []*models.Exchange{{ID: 1}, {ID: 2}, {ID: 3}}
	statusRepo := &fakeStatusRepo{statuses: map[int]*models.ExchangeStatus{}}
	store := statusstore.New(&fakeExchangeRepo{all: exchanges}, statusRepo, noopMarketRepo{}, noopFiatPriceRepo{})
	h := NewStatusesHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/exchange_statuses", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	resp := decodeListResponse(t, rec)
	if resp.Count != 3 {
		t.Fatalf("count = %d, want 3 (one status per exchange)", resp.Count)
	}
	if len(statusRepo.statuses) != 3 {
		t.Fatalf("len(statuses) = %d, want 3 rows ensured", len(statusRepo.statuses))
	}
}

func TestStatusesHandlerListOrdersByExchangeID(t *testing.T) {
	exchanges := []*models.Exchange{{ID: 3}, {ID: 1}, {ID: 2}}
	statusRepo := &fakeStatusRepo{statuses: map[int]*models.ExchangeStatus{}}
	store := statusstore.New(&fakeExchangeRepo{all: exchanges}, statusRepo, noopMarketRepo{}, noopFiatPriceRepo{})
	h := NewStatusesHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/exchange_statuses", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var resp struct {
		Results []*models.ExchangeStatus `json:"results"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i-1].ExchangeID > resp.Results[i].ExchangeID {
			t.Fatalf("results not ordered by exchange_id: %+v", resp.Results)
		}
	}
}
