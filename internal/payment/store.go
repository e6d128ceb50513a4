package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

// ErrNotFound is returned when no payment record matches the query.
var ErrNotFound = errors.New("payment: not found")

// ErrDuplicate is returned when a session with the same pidx or purchase
// order id already exists.
var ErrDuplicate = errors.New("payment: duplicate session")

const uniqueViolation = "23505"

// Record is one payment intent and its last observed gateway state.
type Record struct {
	ID              uuid.UUID
	BookingID       uuid.UUID
	Pidx            string
	PurchaseOrderID string
	Amount          int64
	Status          khalti.Status
	PaymentURL      string
	TransactionID   string
	Fee             int64
	Refunded        int64
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusUpdate carries the fields a lookup or webhook may change.
type StatusUpdate struct {
	Status        khalti.Status
	TransactionID string
	Fee           int64
	Refunded      int64
}

// Store defines payment persistence. Events are append-only snapshots of
// every gateway observation, kept for audit alongside the mutable record.
type Store interface {
	CreatePayment(ctx context.Context, rec Record) (Record, error)
	GetByPidx(ctx context.Context, pidx string) (Record, error)
	GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (Record, error)
	UpdateStatus(ctx context.Context, pidx string, upd StatusUpdate) (Record, error)
	InsertPaymentEvent(ctx context.Context, pidx string, source string, snapshot any) error
}

// PgStore is the pgx-backed payment store.
type PgStore struct {
	Pool *pgxpool.Pool
}

const recordColumns = `
id, booking_id, pidx, purchase_order_id, amount_paisa, status, payment_url,
transaction_id, fee_paisa, refunded_paisa, expires_at, created_at, updated_at`

func (s PgStore) CreatePayment(ctx context.Context, rec Record) (Record, error) {
	const q = `
INSERT INTO payments (id, booking_id, pidx, purchase_order_id, amount_paisa, status, payment_url, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + recordColumns
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := s.Pool.QueryRow(ctx, q,
		rec.ID, rec.BookingID, rec.Pidx, rec.PurchaseOrderID,
		rec.Amount, rec.Status, rec.PaymentURL, nullableTime(rec.ExpiresAt),
	)
	out, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return out, nil
}

func (s PgStore) GetByPidx(ctx context.Context, pidx string) (Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM payments WHERE pidx = $1`
	return scanRecord(s.Pool.QueryRow(ctx, q, pidx))
}

func (s PgStore) GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (Record, error) {
	const q = `
SELECT ` + recordColumns + `
FROM payments
WHERE booking_id = $1
ORDER BY created_at DESC
LIMIT 1`
	return scanRecord(s.Pool.QueryRow(ctx, q, bookingID))
}

func (s PgStore) UpdateStatus(ctx context.Context, pidx string, upd StatusUpdate) (Record, error) {
	const q = `
UPDATE payments
SET status = $2,
    transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
    fee_paisa = $4,
    refunded_paisa = $5,
    updated_at = now()
WHERE pidx = $1
RETURNING ` + recordColumns
	row := s.Pool.QueryRow(ctx, q, pidx, upd.Status, upd.TransactionID, upd.Fee, upd.Refunded)
	return scanRecord(row)
}

func (s PgStore) InsertPaymentEvent(ctx context.Context, pidx string, source string, snapshot any) error {
	const q = `
INSERT INTO payment_events (id, pidx, source, snapshot)
VALUES ($1, $2, $3, $4)`
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, q, uuid.New(), pidx, source, data)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec           Record
		paymentURL    pgtype.Text
		transactionID pgtype.Text
		expiresAt     pgtype.Timestamptz
	)
	err := row.Scan(
		&rec.ID, &rec.BookingID, &rec.Pidx, &rec.PurchaseOrderID,
		&rec.Amount, &rec.Status, &paymentURL, &transactionID,
		&rec.Fee, &rec.Refunded, &expiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.PaymentURL = paymentURL.String
	rec.TransactionID = transactionID.String
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	return rec, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
