package khalti

import "time"

// Status is the payment session state reported by the Khalti lookup and
// webhook payloads. The string values are the processor's own labels.
type Status string

const (
	StatusCompleted         Status = "Completed"
	StatusPending           Status = "Pending"
	StatusInitiated         Status = "Initiated"
	StatusRefunded          Status = "Refunded"
	StatusPartiallyRefunded Status = "Partially Refunded"
	StatusExpired           Status = "Expired"
	StatusUserCanceled      Status = "User canceled"
)

// Terminal reports whether no further state transition is expected for the
// session. Pending and Initiated sessions must be looked up again later.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusPartiallyRefunded, StatusExpired, StatusUserCanceled:
		return true
	default:
		return false
	}
}

// CustomerInfo is forwarded to the hosted payment page when present.
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AmountBreakdown is one labelled slice of the total amount, in paisa.
type AmountBreakdown struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// ProductDetail is one line item shown on the hosted payment page. Prices
// are in paisa and TotalPrice must equal Quantity * UnitPrice.
type ProductDetail struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	TotalPrice int64  `json:"total_price"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// PaymentRequest describes one payment-initiation attempt. Amount is an
// integer paisa value; PurchaseOrderID must be unique per attempt and is the
// caller's correlation key until a pidx is issued.
type PaymentRequest struct {
	ReturnURL         string            `json:"return_url"`
	WebsiteURL        string            `json:"website_url"`
	Amount            int64             `json:"amount"`
	PurchaseOrderID   string            `json:"purchase_order_id"`
	PurchaseOrderName string            `json:"purchase_order_name"`
	CustomerInfo      *CustomerInfo     `json:"customer_info,omitempty"`
	AmountBreakdown   []AmountBreakdown `json:"amount_breakdown,omitempty"`
	ProductDetails    []ProductDetail   `json:"product_details,omitempty"`
}

// PaymentResponse is the session descriptor issued by a successful
// initiation call. It is created once and never mutated; Pidx is the durable
// correlation key for all later lookups and webhooks.
type PaymentResponse struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExpiresIn  int64     `json:"expires_in"`
}

// PaymentStatus is a lookup snapshot for one session. Each lookup produces a
// fresh snapshot; nothing is cached or mutated in place.
type PaymentStatus struct {
	Pidx              string `json:"pidx"`
	TotalAmount       int64  `json:"total_amount"`
	Status            Status `json:"status"`
	TransactionID     string `json:"transaction_id"`
	Fee               int64  `json:"fee"`
	Refunded          int64  `json:"refunded"`
	PurchaseOrderID   string `json:"purchase_order_id"`
	PurchaseOrderName string `json:"purchase_order_name"`
}
