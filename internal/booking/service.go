package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/events"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

// ErrNotFound is returned when the booking does not exist.
var ErrNotFound = errors.New("booking: not found")

// Store defines the persistence operations the reconciler needs. The
// payment core never touches booking storage except through this boundary.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (Booking, error)
	UpdatePaymentState(ctx context.Context, id uuid.UUID, state PaymentState, transactionID string) error
}

// Reconciler reduces gateway status snapshots into booking payment state.
// Each snapshot is applied at most once per transition; re-applying the same
// terminal status is a no-op, so webhook and poller may race safely.
type Reconciler struct {
	Store  Store
	Events *events.Bus
	Logger zerolog.Logger
}

// Apply transitions the booking according to the gateway snapshot and
// returns the booking as it stands afterwards. Non-terminal statuses leave
// the booking untouched.
func (r *Reconciler) Apply(ctx context.Context, bookingID uuid.UUID, st khalti.PaymentStatus) (Booking, error) {
	if r == nil || r.Store == nil {
		return Booking{}, errors.New("booking: reconciler not configured")
	}
	b, err := r.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !st.Status.Terminal() {
		return b, nil
	}
	if st.TotalAmount > 0 && b.AmountPaisa > 0 && st.TotalAmount != b.AmountPaisa {
		return b, fmt.Errorf("booking %s: gateway amount %d does not match booking amount %d", bookingID, st.TotalAmount, b.AmountPaisa)
	}

	next, ok := nextState(b.PaymentState, st.Status)
	if !ok {
		// Already reduced, or a transition the current state forbids.
		return b, nil
	}
	if err := r.Store.UpdatePaymentState(ctx, bookingID, next, st.TransactionID); err != nil {
		return b, err
	}
	prev := b.PaymentState
	b.PaymentState = next
	r.Logger.Info().
		Str("booking_id", bookingID.String()).
		Str("pidx", st.Pidx).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("booking_payment_state")
	r.emit(ctx, bookingID, st, next)
	return b, nil
}

// nextState decides the transition for a terminal gateway status. A paid
// booking only moves further for refunds; other terminal booking states are
// frozen.
func nextState(current PaymentState, status khalti.Status) (PaymentState, bool) {
	switch current {
	case PaymentStatePending, "":
		switch status {
		case khalti.StatusCompleted:
			return PaymentStatePaid, true
		case khalti.StatusExpired:
			return PaymentStateExpired, true
		case khalti.StatusUserCanceled:
			return PaymentStateCanceled, true
		case khalti.StatusRefunded:
			return PaymentStateRefunded, true
		case khalti.StatusPartiallyRefunded:
			return PaymentStatePartiallyRefunded, true
		}
	case PaymentStatePaid:
		switch status {
		case khalti.StatusRefunded:
			return PaymentStateRefunded, true
		case khalti.StatusPartiallyRefunded:
			return PaymentStatePartiallyRefunded, true
		}
	case PaymentStatePartiallyRefunded:
		if status == khalti.StatusRefunded {
			return PaymentStateRefunded, true
		}
	}
	return current, false
}

func (r *Reconciler) emit(ctx context.Context, bookingID uuid.UUID, st khalti.PaymentStatus, next PaymentState) {
	if r.Events == nil {
		return
	}
	payload := map[string]any{
		"bookingId":       bookingID.String(),
		"pidx":            st.Pidx,
		"status":          string(st.Status),
		"purchaseOrderId": st.PurchaseOrderID,
	}
	if st.TransactionID != "" {
		payload["transactionId"] = st.TransactionID
	}
	switch next {
	case PaymentStatePaid:
		_, _ = r.Events.Emit(ctx, events.TopicPaymentCompleted, bookingID, payload)
		_, _ = r.Events.Emit(ctx, events.TopicBookingConfirmed, bookingID, payload)
	case PaymentStateExpired:
		_, _ = r.Events.Emit(ctx, events.TopicPaymentExpired, bookingID, payload)
		_, _ = r.Events.Emit(ctx, events.TopicBookingCanceled, bookingID, payload)
	case PaymentStateCanceled:
		_, _ = r.Events.Emit(ctx, events.TopicPaymentFailed, bookingID, payload)
		_, _ = r.Events.Emit(ctx, events.TopicBookingCanceled, bookingID, payload)
	case PaymentStateRefunded, PaymentStatePartiallyRefunded:
		_, _ = r.Events.Emit(ctx, events.TopicPaymentRefunded, bookingID, payload)
	}
}
