package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the pgx-backed booking store.
type PgStore struct {
	Pool *pgxpool.Pool
}

func (s PgStore) GetBooking(ctx context.Context, id uuid.UUID) (Booking, error) {
	const q = `
SELECT id, reference, kind, customer_name, customer_email, customer_phone,
       amount_paisa, payment_state, paid_at, updated_at
FROM bookings
WHERE id = $1`
	var (
		b      Booking
		paidAt pgtype.Timestamptz
	)
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&b.ID, &b.Reference, &b.Kind, &b.CustomerName, &b.CustomerEmail,
		&b.CustomerPhone, &b.AmountPaisa, &b.PaymentState, &paidAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, err
	}
	if paidAt.Valid {
		b.PaidAt = paidAt.Time
	}
	return b, nil
}

func (s PgStore) UpdatePaymentState(ctx context.Context, id uuid.UUID, state PaymentState, transactionID string) error {
	const q = `
UPDATE bookings
SET payment_state = $2,
    payment_transaction_id = NULLIF($3, ''),
    paid_at = CASE WHEN $2 = 'PAID' THEN now() ELSE paid_at END,
    updated_at = now()
WHERE id = $1`
	tag, err := s.Pool.Exec(ctx, q, id, state, transactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
