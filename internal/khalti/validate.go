package khalti

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the request the way the processor will. It exists for
// callers that want to fail before spending a network round trip; the client
// itself forwards breakdown and product sums untouched and surfaces the
// processor's rejection instead of correcting them.
func (r PaymentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be a positive paisa value")
	}
	if strings.TrimSpace(r.PurchaseOrderID) == "" {
		return errors.New("purchase_order_id is required")
	}
	if strings.TrimSpace(r.PurchaseOrderName) == "" {
		return errors.New("purchase_order_name is required")
	}
	if len(r.AmountBreakdown) > 0 {
		var sum int64
		for _, b := range r.AmountBreakdown {
			sum += b.Amount
		}
		if sum != r.Amount {
			return fmt.Errorf("amount_breakdown sums to %d, want %d", sum, r.Amount)
		}
	}
	if len(r.ProductDetails) > 0 {
		var sum int64
		for _, p := range r.ProductDetails {
			sum += p.TotalPrice
		}
		if sum != r.Amount {
			return fmt.Errorf("product_details total %d, want %d", sum, r.Amount)
		}
	}
	return nil
}
