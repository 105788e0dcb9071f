package models

import (
	"fmt"
	"strings"
)

// FormatPriceCents renders minor units for messages, e.g. "$20.00" or "20.00 EUR".
func FormatPriceCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "USD" {
		return sign + "$" + amount
	}
	return sign + amount + " " + code
}
