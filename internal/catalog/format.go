package catalog

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders a price with thousands separators for dashboard
// listings, e.g. 1234567.5 -> "1,234,567.50".
func FormatPrice(v float64) string {
	return pricePrinter.Sprintf("%.2f", v)
}
