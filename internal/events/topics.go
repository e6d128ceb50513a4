package events

// Topic constants for domain events emitted by the platform.
const (
	TopicPaymentInitiated = "payment.initiated"
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentExpired   = "payment.expired"
	TopicPaymentRefunded  = "payment.refunded"
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCanceled  = "booking.canceled"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicPaymentInitiated,
		TopicPaymentCompleted,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicPaymentRefunded,
		TopicBookingConfirmed,
		TopicBookingCanceled,
	}
}
