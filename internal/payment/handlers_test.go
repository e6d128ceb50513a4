package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
	"github.com/stagehub-np/backend-stagehub/internal/payment"
)

func newRouter(svc *payment.Service) http.Handler {
	h := &payment.Handler{Svc: svc, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Post("/payments", h.Initiate)
	r.Get("/payments/{pidx}", h.Status)
	return r
}

func TestInitiateEndpoint(t *testing.T) {
	store := newMemPaymentStore()
	gw := &stubGateway{}
	b := pendingBooking(150_000)
	svc, _, _ := newService(store, gw, b)
	router := newRouter(svc)

	body := `{"bookingId":"` + b.ID.String() + `","orderName":"artist booking"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Pidx            string `json:"pidx"`
		PaymentURL      string `json:"paymentUrl"`
		Amount          int64  `json:"amount"`
		AmountFormatted string `json:"amountFormatted"`
		Reused          bool   `json:"reused"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if resp.Amount != 150_000 {
		t.Fatalf("amount = %d", resp.Amount)
	}
	if resp.AmountFormatted != "Rs. 1,500.00" {
		t.Fatalf("formatted = %q", resp.AmountFormatted)
	}

	// Same booking again returns the live intent with 200.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("reuse code = %d", w.Code)
	}
}

func TestInitiateEndpointBadRequests(t *testing.T) {
	store := newMemPaymentStore()
	svc, _, _ := newService(store, &stubGateway{}, pendingBooking(1000))
	router := newRouter(svc)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"bad uuid", `{"bookingId":"nope"}`, http.StatusBadRequest},
		{"unknown booking", `{"bookingId":"00000000-0000-0000-0000-000000000001"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(tc.body)))
		if w.Code != tc.want {
			t.Errorf("%s: code = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestInitiateEndpointGatewayRejection(t *testing.T) {
	store := newMemPaymentStore()
	gw := &stubGateway{initiateErr: &khalti.InitiationError{StatusCode: 400, Detail: "amount too small"}}
	b := pendingBooking(500)
	svc, _, _ := newService(store, gw, b)
	router := newRouter(svc)

	body := `{"bookingId":"` + b.ID.String() + `"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTENT_FAILED") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestInitiateEndpointGatewayTimeout(t *testing.T) {
	store := newMemPaymentStore()
	gw := &stubGateway{initiateErr: context.DeadlineExceeded}
	b := pendingBooking(1000)
	svc, _, _ := newService(store, gw, b)
	router := newRouter(svc)

	body := `{"bookingId":"` + b.ID.String() + `"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	store := newMemPaymentStore()
	gw := &stubGateway{}
	b := pendingBooking(1000)
	svc, _, _ := newService(store, gw, b)
	router := newRouter(svc)

	created, err := svc.CreatePayment(context.Background(), payment.CreateParams{BookingID: b.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/"+created.Record.Pidx, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if gw.lookups != 0 {
		t.Fatal("plain status read hit the gateway")
	}

	gw.status = khalti.PaymentStatus{Status: khalti.StatusCompleted, TotalAmount: 1000}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/"+created.Record.Pidx+"?refresh=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("refresh code = %d", w.Code)
	}
	if gw.lookups != 1 {
		t.Fatalf("lookups = %d", gw.lookups)
	}
	if !strings.Contains(w.Body.String(), `"status":"Completed"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestStatusEndpointUnknownPidx(t *testing.T) {
	store := newMemPaymentStore()
	svc, _, _ := newService(store, &stubGateway{}, pendingBooking(1000))
	router := newRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/p-ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
}
