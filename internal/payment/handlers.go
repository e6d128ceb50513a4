package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/booking"
	"github.com/stagehub-np/backend-stagehub/internal/common"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

// Handler exposes the payment HTTP surface.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type intentResponse struct {
	Pidx            string    `json:"pidx"`
	PaymentURL      string    `json:"paymentUrl"`
	PurchaseOrderID string    `json:"purchaseOrderId"`
	Amount          int64     `json:"amount"`
	AmountFormatted string    `json:"amountFormatted"`
	Status          string    `json:"status"`
	Reused          bool      `json:"reused"`
	ExpiresAt       time.Time `json:"expiresAt,omitempty"`
}

type statusResponse struct {
	Pidx            string    `json:"pidx"`
	BookingID       string    `json:"bookingId"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	AmountFormatted string    `json:"amountFormatted"`
	TransactionID   string    `json:"transactionId,omitempty"`
	Fee             int64     `json:"fee,omitempty"`
	Refunded        int64     `json:"refunded,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Initiate handles POST /api/v1/payments. The request either reuses a live
// pending intent for the booking or opens exactly one new gateway session.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookingID string                   `json:"bookingId"`
		OrderName string                   `json:"orderName"`
		Breakdown []khalti.AmountBreakdown `json:"breakdown"`
		Products  []khalti.ProductDetail   `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid json", nil)
		return
	}
	bookingID, err := uuid.Parse(strings.TrimSpace(body.BookingID))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BOOKING_ID", "bookingId must be a uuid", nil)
		return
	}

	res, err := h.Svc.CreatePayment(r.Context(), CreateParams{
		BookingID: bookingID,
		OrderName: strings.TrimSpace(body.OrderName),
		Breakdown: body.Breakdown,
		Products:  body.Products,
	})
	if err != nil {
		h.writeInitiateError(w, bookingID, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	common.JSON(w, status, intentResponse{
		Pidx:            res.Record.Pidx,
		PaymentURL:      res.Record.PaymentURL,
		PurchaseOrderID: res.Record.PurchaseOrderID,
		Amount:          res.Record.Amount,
		AmountFormatted: khalti.FormatAmount(khalti.ToRupees(res.Record.Amount)),
		Status:          string(res.Record.Status),
		Reused:          res.Reused,
		ExpiresAt:       res.Record.ExpiresAt,
	})
}

// Status handles GET /api/v1/payments/{pidx}. With ?refresh=1 the stored state
// is refreshed from the gateway before responding.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	pidx := strings.TrimSpace(chi.URLParam(r, "pidx"))
	if pidx == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_PIDX", "pidx is required", nil)
		return
	}

	var (
		rec Record
		err error
	)
	if r.URL.Query().Get("refresh") == "1" {
		rec, err = h.Svc.RefreshStatus(r.Context(), pidx)
	} else {
		rec, err = h.Svc.GetByPidx(r.Context(), pidx)
	}
	if err != nil {
		h.writeStatusError(w, pidx, err)
		return
	}

	common.JSON(w, http.StatusOK, statusResponse{
		Pidx:            rec.Pidx,
		BookingID:       rec.BookingID.String(),
		Status:          string(rec.Status),
		Amount:          rec.Amount,
		AmountFormatted: khalti.FormatAmount(khalti.ToRupees(rec.Amount)),
		TransactionID:   rec.TransactionID,
		Fee:             rec.Fee,
		Refunded:        rec.Refunded,
		UpdatedAt:       rec.UpdatedAt,
	})
}

func (h *Handler) writeInitiateError(w http.ResponseWriter, bookingID uuid.UUID, err error) {
	var appErr *common.AppError
	var initErr *khalti.InitiationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", "payment gateway did not respond in time", nil)
	case errors.Is(err, booking.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "booking does not exist", nil)
	case errors.As(err, &appErr):
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
	case errors.As(err, &initErr):
		h.Logger.Warn().Err(err).Str("booking_id", bookingID.String()).Msg("payment_initiation_rejected")
		common.JSONError(w, http.StatusBadGateway, "INTENT_FAILED", initErr.Detail, nil)
	default:
		h.Logger.Error().Err(err).Str("booking_id", bookingID.String()).Msg("payment_initiation_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTENT_FAILED", "could not create payment intent", nil)
	}
}

func (h *Handler) writeStatusError(w http.ResponseWriter, pidx string, err error) {
	var lookupErr *khalti.LookupError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "no payment session for pidx", nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", "payment gateway did not respond in time", nil)
	case errors.As(err, &lookupErr):
		h.Logger.Warn().Err(err).Str("pidx", pidx).Msg("payment_lookup_rejected")
		common.JSONError(w, http.StatusBadGateway, "LOOKUP_FAILED", lookupErr.Detail, nil)
	default:
		h.Logger.Error().Err(err).Str("pidx", pidx).Msg("payment_status_failed")
		common.JSONError(w, http.StatusInternalServerError, "STATUS_FAILED", "could not load payment status", nil)
	}
}
