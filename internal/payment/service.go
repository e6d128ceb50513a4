package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stagehub-np/backend-stagehub/internal/booking"
	"github.com/stagehub-np/backend-stagehub/internal/common"
	"github.com/stagehub-np/backend-stagehub/internal/events"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

// Gateway is the slice of the payment processor client the service uses.
type Gateway interface {
	InitiatePayment(ctx context.Context, req khalti.PaymentRequest) (khalti.PaymentResponse, error)
	LookupPayment(ctx context.Context, pidx string) (khalti.PaymentStatus, error)
}

// Reconciler applies a gateway status snapshot to the owning booking.
type Reconciler interface {
	Apply(ctx context.Context, bookingID uuid.UUID, st khalti.PaymentStatus) (booking.Booking, error)
}

// BookingReader resolves the booking a payment intent is opened for.
type BookingReader interface {
	GetBooking(ctx context.Context, id uuid.UUID) (booking.Booking, error)
}

// Poller schedules a deferred status check for a payment session.
type Poller interface {
	SchedulePoll(ctx context.Context, pidx string, delay time.Duration) error
}

// ErrBookingNotPayable is returned when the booking is not awaiting payment.
var ErrBookingNotPayable = errors.New("payment: booking is not awaiting payment")

// Service owns the payment intent lifecycle: opening sessions against the
// gateway, refreshing their status, and handing terminal snapshots to the
// booking reconciler.
type Service struct {
	Store        Store
	Bookings     BookingReader
	Gateway      Gateway
	Reconciler   Reconciler
	Poller       Poller
	Events       *events.Bus
	Metrics      *Metrics
	IntentTTL    time.Duration
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// CreateParams describe one payment intent request.
type CreateParams struct {
	BookingID uuid.UUID                `json:"bookingId"`
	OrderName string                   `json:"orderName"`
	Breakdown []khalti.AmountBreakdown `json:"breakdown,omitempty"`
	Products  []khalti.ProductDetail   `json:"products,omitempty"`
}

// CreateResult is the handler-facing view of an opened (or reused) intent.
type CreateResult struct {
	Record Record
	Reused bool
}

// CreatePayment opens a payment session for the booking, or returns the
// still-live pending intent when one exists. Each call produces at most one
// gateway initiation; a failed initiation is reported, never retried here.
func (s *Service) CreatePayment(ctx context.Context, p CreateParams) (CreateResult, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.create")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", p.BookingID.String()))

	result := "error"
	defer func() { s.count(s.metrics().InitiateTotal, result) }()

	b, err := s.Bookings.GetBooking(ctx, p.BookingID)
	if err != nil {
		return CreateResult{}, err
	}
	if b.PaymentState != booking.PaymentStatePending && b.PaymentState != "" {
		return CreateResult{}, common.NewAppError("BOOKING_NOT_PAYABLE", "booking is not awaiting payment",
			http.StatusConflict, fmt.Errorf("%w: state %s", ErrBookingNotPayable, b.PaymentState))
	}

	if existing, ok := s.livePendingIntent(ctx, p.BookingID); ok {
		result = "reused"
		return CreateResult{Record: existing, Reused: true}, nil
	}

	orderName := p.OrderName
	if orderName == "" {
		orderName = fmt.Sprintf("%s booking %s", b.Kind, b.Reference)
	}
	req := khalti.PaymentRequest{
		Amount:            b.AmountPaisa,
		PurchaseOrderID:   khalti.GenerateReference(),
		PurchaseOrderName: orderName,
		CustomerInfo: &khalti.CustomerInfo{
			Name:  b.CustomerName,
			Email: b.CustomerEmail,
			Phone: b.CustomerPhone,
		},
		AmountBreakdown: p.Breakdown,
		ProductDetails:  p.Products,
	}
	resp, err := s.Gateway.InitiatePayment(ctx, req)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return CreateResult{}, err
	}

	rec, err := s.Store.CreatePayment(ctx, Record{
		BookingID:       p.BookingID,
		Pidx:            resp.Pidx,
		PurchaseOrderID: req.PurchaseOrderID,
		Amount:          b.AmountPaisa,
		Status:          khalti.StatusInitiated,
		PaymentURL:      resp.PaymentURL,
		ExpiresAt:       s.intentExpiry(resp),
	})
	if err != nil {
		// The session exists upstream but we lost the record. Surface it;
		// the poller cannot find it and the booking stays pending.
		return CreateResult{}, fmt.Errorf("payment: persist intent %s: %w", resp.Pidx, err)
	}
	if err := s.Store.InsertPaymentEvent(ctx, rec.Pidx, "initiate", resp); err != nil {
		s.Logger.Warn().Err(err).Str("pidx", rec.Pidx).Msg("payment_event_insert_failed")
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicPaymentInitiated, p.BookingID, map[string]any{
			"pidx":            rec.Pidx,
			"purchaseOrderId": rec.PurchaseOrderID,
			"amount":          rec.Amount,
		})
	}
	if s.Poller != nil {
		if err := s.Poller.SchedulePoll(ctx, rec.Pidx, s.PollInterval); err != nil {
			s.Logger.Warn().Err(err).Str("pidx", rec.Pidx).Msg("poll_schedule_failed")
		}
	}
	s.Logger.Info().
		Str("booking_id", p.BookingID.String()).
		Str("pidx", rec.Pidx).
		Int64("amount", rec.Amount).
		Msg("payment_intent_created")
	result = "success"
	return CreateResult{Record: rec}, nil
}

// RefreshStatus looks up the session upstream, persists the snapshot, and
// reconciles the booking. Safe to call repeatedly for the same pidx.
func (s *Service) RefreshStatus(ctx context.Context, pidx string) (Record, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.refresh", trace.WithAttributes(attribute.String("pidx", pidx)))
	defer span.End()

	result := "error"
	defer func() { s.count(s.metrics().LookupTotal, result) }()

	st, err := s.Gateway.LookupPayment(ctx, pidx)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.applySnapshot(ctx, st, "lookup")
	if err != nil {
		return rec, err
	}
	result = "success"
	return rec, nil
}

// GetByPidx returns the stored record without touching the gateway.
func (s *Service) GetByPidx(ctx context.Context, pidx string) (Record, error) {
	return s.Store.GetByPidx(ctx, pidx)
}

// applySnapshot persists an observed gateway state and hands it to the
// booking reconciler. Shared by lookup refreshes and the webhook path.
func (s *Service) applySnapshot(ctx context.Context, st khalti.PaymentStatus, source string) (Record, error) {
	rec, err := s.Store.UpdateStatus(ctx, st.Pidx, StatusUpdate{
		Status:        st.Status,
		TransactionID: st.TransactionID,
		Fee:           st.Fee,
		Refunded:      st.Refunded,
	})
	if err != nil {
		return Record{}, err
	}
	if err := s.Store.InsertPaymentEvent(ctx, st.Pidx, source, st); err != nil {
		s.Logger.Warn().Err(err).Str("pidx", st.Pidx).Msg("payment_event_insert_failed")
	}
	if s.Reconciler != nil {
		if _, err := s.Reconciler.Apply(ctx, rec.BookingID, st); err != nil {
			return rec, fmt.Errorf("payment: reconcile booking %s: %w", rec.BookingID, err)
		}
	}
	return rec, nil
}

// livePendingIntent reports the latest intent for the booking when it is
// still open and inside its TTL.
func (s *Service) livePendingIntent(ctx context.Context, bookingID uuid.UUID) (Record, bool) {
	rec, err := s.Store.GetLatestByBooking(ctx, bookingID)
	if err != nil {
		return Record{}, false
	}
	if rec.Status.Terminal() {
		return Record{}, false
	}
	deadline := rec.ExpiresAt
	if deadline.IsZero() && s.IntentTTL > 0 {
		deadline = rec.CreatedAt.Add(s.IntentTTL)
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return Record{}, false
	}
	return rec, true
}

func (s *Service) intentExpiry(resp khalti.PaymentResponse) time.Time {
	if !resp.ExpiresAt.IsZero() {
		return resp.ExpiresAt
	}
	if resp.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if s.IntentTTL > 0 {
		return time.Now().Add(s.IntentTTL)
	}
	return time.Time{}
}

func (s *Service) metrics() *Metrics {
	if s.Metrics != nil {
		return s.Metrics
	}
	return noopMetrics
}

func (s *Service) count(c *prometheus.CounterVec, result string) {
	if c != nil {
		c.WithLabelValues(result).Inc()
	}
}

var noopMetrics = NewMetrics()
