package khalti

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ToPaisa converts a rupee amount to integer paisa (1 rupee = 100 paisa),
// rounding to the nearest paisa with halves away from zero. All amounts sent
// to the processor are paisa values produced here.
func ToPaisa(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// ToRupees converts an integer paisa amount back to rupees. Exact, since
// paisa values are integral; ToRupees(ToPaisa(x)) recovers x to within one
// paisa of rounding.
func ToRupees(paisa int64) float64 {
	return float64(paisa) / 100
}

var displayPrinter = message.NewPrinter(language.English)

// FormatAmount renders a rupee amount for display only. Never feed the
// result back into computation or comparison.
func FormatAmount(rupees float64) string {
	return displayPrinter.Sprintf("Rs. %v", number.Decimal(rupees,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
}
