/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package outcome

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MaxAmount is the largest bill, in rupees, that can be converted to paise exactly.
const MaxAmount = 1e13

const currencyGlyph = "₹"

var displayLocale = language.Make("en-IN")

// Paise is an amount in the minor unit of the display currency.
type Paise int64

// ToPaise converts rupees to whole paise, rounding halves away from zero.
// Rounding works on the shortest decimal form of rupees, so 1.005 is a tie
// even though its binary value sits just below it.
func ToPaise(rupees float64) (Paise, error) {
	if !finite(rupees) || rupees < 0 || rupees > MaxAmount {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, rupees)
	}

	whole, frac, _ := strings.Cut(strconv.FormatFloat(rupees, 'f', -1, 64), ".")
	frac += "000"

	p, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, rupees)
	}

	p = p*100 + int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	if frac[2] >= '5' {
		p++
	}

	return Paise(p), nil
}

// Split divides p between k people, rounding half a paisa up.
func (p Paise) Split(k int) Paise {
	if k <= 0 {
		return 0
	}

	return (2*p + Paise(k)) / Paise(2*k)
}

// String renders p with the rupee glyph, Indian digit grouping and at most
// two fraction digits, trailing zeros trimmed: ₹200, ₹12.5, ₹12,34,567.89.
func (p Paise) String() string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}

	rupees, frac := int64(p/100), int64(p%100)

	printer := message.NewPrinter(displayLocale)

	var b strings.Builder

	b.WriteString(sign)
	b.WriteString(currencyGlyph)
	b.WriteString(printer.Sprintf("%v", number.Decimal(rupees)))

	if frac != 0 {
		b.WriteString(strings.TrimRight(fmt.Sprintf(".%02d", frac), "0"))
	}

	return b.String()
}

// FormatINR formats a rupee amount for display. Invalid amounts render as "₹0".
func FormatINR(rupees float64) string {
	p, err := ToPaise(rupees)
	if err != nil {
		return Paise(0).String()
	}

	return p.String()
}
