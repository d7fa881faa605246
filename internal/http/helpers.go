package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"investimento/internal/core"
)

// amountPrinter groups thousands with commas and uses a dot for decimals.
var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders v rounded half away from zero to two decimals, with
// thousands separators (e.g. "1,234,567.89").
func formatAmount(v float64) string {
	return formatDecimal(core.RoundAmount(v))
}

func formatDecimal(d decimal.Decimal) string {
	return amountPrinter.Sprintf("%.2f", d.InexactFloat64())
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// routeLabel maps a path onto a bounded set of metric labels.
func routeLabel(path string) string {
	switch path {
	case "/", "/calculate", "/projection.csv", "/healthz", "/readyz", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/"
	}
	return "other"
}
