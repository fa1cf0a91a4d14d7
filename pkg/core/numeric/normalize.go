// Package numeric parses locale-ambiguous amount strings found in
// spreadsheets and reports.
package numeric

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
)

var (
	ErrEmpty       = errors.New("numeric: empty token")
	ErrUnparseable = errors.New("numeric: unparseable token")
)

// decimalCommaCurrencies lists currencies whose home markets write 1.234,56.
// go-money only records the convention for a handful (BRL, ARS, ...), so the
// table lookup is supplemented here.
var decimalCommaCurrencies = map[string]bool{
	"EUR": true, "DKK": true, "NOK": true, "SEK": true, "PLN": true,
	"CZK": true, "HUF": true, "RON": true, "TRY": true, "IDR": true,
	"VND": true, "CLP": true, "COP": true, "ISK": true, "HRK": true,
	"BGN": true, "RSD": true, "UAH": true, "RUB": true,
}

// UsesDecimalComma reports whether amounts in currency conventionally use
// "," as the decimal separator and "." for thousands.
func UsesDecimalComma(currency string) bool {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return false
	}
	if decimalCommaCurrencies[code] {
		return true
	}
	if c := money.GetCurrency(code); c != nil {
		return c.Decimal == ","
	}
	return false
}

// Parse converts raw into a signed float. currency is a hint used only when
// the separators alone are ambiguous ("1.234" or "1,234").
func Parse(raw, currency string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrEmpty
	}
	s = strings.ReplaceAll(s, "−", "-")

	var signed strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '(', r == ')':
			signed.WriteRune(r)
		}
	}
	token := signed.String()

	negative := false
	switch {
	case strings.HasPrefix(token, "(") && strings.HasSuffix(token, ")"):
		negative = true
		token = strings.TrimSuffix(strings.TrimPrefix(token, "("), ")")
		token = strings.TrimPrefix(token, "-")
	case strings.HasPrefix(token, "-"):
		negative = true
		token = strings.TrimPrefix(token, "-")
	}
	// A minus or parenthesis left inside the digits means a range or date, not an amount.
	if strings.ContainsAny(token, "-()") {
		return 0, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	if !strings.ContainsAny(token, "0123456789") {
		return 0, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}

	normalized, err := resolveSeparators(token, currency)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, raw)
	}

	val, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	if negative {
		val = -val
	}
	return val, nil
}

// resolveSeparators rewrites token so that "." is the only, optional,
// decimal separator.
func resolveSeparators(token, currency string) (string, error) {
	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal, thousands := ".", ","
		if lastComma > lastDot {
			decimal, thousands = ",", "."
		}
		token = strings.ReplaceAll(token, thousands, "")
		if strings.Count(token, decimal) > 1 {
			return "", ErrUnparseable
		}
		return strings.Replace(token, decimal, ".", 1), nil

	case lastComma >= 0:
		groups := strings.Split(token, ",")
		if len(groups) == 2 && (len(groups[1]) <= 2 || UsesDecimalComma(currency)) {
			return groups[0] + "." + groups[1], nil
		}
		return strings.Join(groups, ""), nil

	case lastDot >= 0:
		groups := strings.Split(token, ".")
		if len(groups) > 2 {
			return strings.Join(groups, ""), nil
		}
		if len(groups[1]) > 2 && UsesDecimalComma(currency) {
			return groups[0] + groups[1], nil
		}
		return token, nil
	}
	return token, nil
}

// MustParse is Parse for literals in tests and fixtures; it panics on failure.
func MustParse(raw, currency string) float64 {
	v, err := Parse(raw, currency)
	if err != nil {
		panic(err)
	}
	return v
}
