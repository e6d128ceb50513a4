package booking_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/booking"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

type stubStore struct {
	bookings map[uuid.UUID]booking.Booking
	updates  int
}

func (s *stubStore) GetBooking(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (s *stubStore) UpdatePaymentState(_ context.Context, id uuid.UUID, state booking.PaymentState, transactionID string) error {
	b := s.bookings[id]
	b.PaymentState = state
	s.bookings[id] = b
	s.updates++
	return nil
}

func newStub(state booking.PaymentState, amount int64) (*stubStore, uuid.UUID) {
	id := uuid.New()
	return &stubStore{bookings: map[uuid.UUID]booking.Booking{id: {
		ID:           id,
		Reference:    "BK-100",
		Kind:         booking.KindVenue,
		AmountPaisa:  amount,
		PaymentState: state,
	}}}, id
}

func TestApplyCompletedMarksPaid(t *testing.T) {
	store, id := newStub(booking.PaymentStatePending, 1050)
	r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}

	b, err := r.Apply(context.Background(), id, khalti.PaymentStatus{
		Pidx:        "p-1",
		Status:      khalti.StatusCompleted,
		TotalAmount: 1050,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b.PaymentState != booking.PaymentStatePaid {
		t.Fatalf("state = %s", b.PaymentState)
	}
	if store.updates != 1 {
		t.Fatalf("updates = %d", store.updates)
	}
}

func TestApplyIsIdempotentForRepeatedSnapshots(t *testing.T) {
	store, id := newStub(booking.PaymentStatePending, 1050)
	r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}
	st := khalti.PaymentStatus{Pidx: "p-1", Status: khalti.StatusCompleted, TotalAmount: 1050}

	for i := 0; i < 3; i++ {
		if _, err := r.Apply(context.Background(), id, st); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if store.updates != 1 {
		t.Fatalf("repeated snapshot re-applied: %d updates", store.updates)
	}
}

func TestApplyNonTerminalIsNoop(t *testing.T) {
	store, id := newStub(booking.PaymentStatePending, 1050)
	r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}

	b, err := r.Apply(context.Background(), id, khalti.PaymentStatus{Pidx: "p-1", Status: khalti.StatusPending, TotalAmount: 1050})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b.PaymentState != booking.PaymentStatePending || store.updates != 0 {
		t.Fatalf("pending snapshot mutated booking: state=%s updates=%d", b.PaymentState, store.updates)
	}
}

func TestApplyAmountMismatchRejected(t *testing.T) {
	store, id := newStub(booking.PaymentStatePending, 1050)
	r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}

	_, err := r.Apply(context.Background(), id, khalti.PaymentStatus{Pidx: "p-1", Status: khalti.StatusCompleted, TotalAmount: 9999})
	if err == nil {
		t.Fatal("amount mismatch accepted")
	}
	if store.updates != 0 {
		t.Fatal("booking mutated despite mismatch")
	}
}

func TestApplyTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    booking.PaymentState
		status  khalti.Status
		want    booking.PaymentState
		changed bool
	}{
		{"pending expires", booking.PaymentStatePending, khalti.StatusExpired, booking.PaymentStateExpired, true},
		{"pending canceled", booking.PaymentStatePending, khalti.StatusUserCanceled, booking.PaymentStateCanceled, true},
		{"paid refunded", booking.PaymentStatePaid, khalti.StatusRefunded, booking.PaymentStateRefunded, true},
		{"paid partial refund", booking.PaymentStatePaid, khalti.StatusPartiallyRefunded, booking.PaymentStatePartiallyRefunded, true},
		{"partial to full refund", booking.PaymentStatePartiallyRefunded, khalti.StatusRefunded, booking.PaymentStateRefunded, true},
		{"paid cannot expire", booking.PaymentStatePaid, khalti.StatusExpired, booking.PaymentStatePaid, false},
		{"refunded frozen", booking.PaymentStateRefunded, khalti.StatusCompleted, booking.PaymentStateRefunded, false},
		{"canceled frozen", booking.PaymentStateCanceled, khalti.StatusCompleted, booking.PaymentStateCanceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, id := newStub(tc.from, 1050)
			r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}
			b, err := r.Apply(context.Background(), id, khalti.PaymentStatus{Pidx: "p-t", Status: tc.status, TotalAmount: 1050})
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if b.PaymentState != tc.want {
				t.Fatalf("state = %s, want %s", b.PaymentState, tc.want)
			}
			wantUpdates := 0
			if tc.changed {
				wantUpdates = 1
			}
			if store.updates != wantUpdates {
				t.Fatalf("updates = %d, want %d", store.updates, wantUpdates)
			}
		})
	}
}

func TestApplyUnknownBooking(t *testing.T) {
	store, _ := newStub(booking.PaymentStatePending, 1050)
	r := &booking.Reconciler{Store: store, Logger: zerolog.Nop()}
	if _, err := r.Apply(context.Background(), uuid.New(), khalti.PaymentStatus{Status: khalti.StatusCompleted}); err == nil {
		t.Fatal("unknown booking accepted")
	}
}
