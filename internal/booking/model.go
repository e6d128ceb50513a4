package booking

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a booking reserves.
type Kind string

const (
	KindArtist      Kind = "artist"
	KindVenue       Kind = "venue"
	KindSoundSystem Kind = "sound_system"
	KindInfluencer  Kind = "influencer"
	KindEventTicket Kind = "event_ticket"
)

// PaymentState is the booking-side reduction of gateway payment statuses.
type PaymentState string

const (
	PaymentStatePending           PaymentState = "PENDING_PAYMENT"
	PaymentStatePaid              PaymentState = "PAID"
	PaymentStateExpired           PaymentState = "EXPIRED"
	PaymentStateCanceled          PaymentState = "CANCELED"
	PaymentStateRefunded          PaymentState = "REFUNDED"
	PaymentStatePartiallyRefunded PaymentState = "PARTIALLY_REFUNDED"
)

// Booking is the slice of a booking record the payment boundary needs. The
// listing/CRUD side owns the rest of the schema.
type Booking struct {
	ID            uuid.UUID
	Reference     string
	Kind          Kind
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	AmountPaisa   int64
	PaymentState  PaymentState
	PaidAt        time.Time
	UpdatedAt     time.Time
}
