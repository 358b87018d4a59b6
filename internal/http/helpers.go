package http

import (
	"fmt"
	"strings"

	"finanzas/internal/core"
)

// sanitizeInput trims surrounding whitespace-adjacent control characters
// from form values. Plain spaces are kept so the username rules can reject
// them with a precise message.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// formatAmount renders cents as a two-decimal string for the UI.
func formatAmount(m core.Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// trimErrorDetail strips the wrapped sentinel prefix so the detail text can
// stand alone in a user-facing message.
func trimErrorDetail(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
