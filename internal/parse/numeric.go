package parse

// numeric.go provides the number-shaped parsers.
//
// These handle the messy reality of spreadsheet numbers:
//   - Currency symbols as prefix or suffix ($, €, £, ¥, ₹)
//   - Magnitude suffixes (1.2K, 3M, 4.5B, 1T)
//   - Accounting negatives "(1,234.50)"
//   - Locale separators: "1,234.5" vs "1.234,5"
//   - Trailing percent signs
//
// Separator conventions are detected once per column (Fit) and then applied
// to every cell, so a column never mixes readings of "1,200".

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/mlready/internal/table"
)

// numericRegex validates a number after separators have been normalized.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var currencySymbols = []string{
	"$",
	"€", // Euro
	"£", // Pound
	"¥", // Yen
	"₹", // Rupee
}

// magnitudeExponents maps upper-case suffixes to powers of ten.
var magnitudeExponents = map[byte]int{
	'K': 3,
	'M': 6,
	'B': 9,
	'T': 12,
}

// Confidence levels for the currency parser.
const (
	markedAmountConfidence = 1.0
	bareAmountConfidence   = 0.5
)

type separators struct {
	decimal   string
	thousands string
}

var defaultSeparators = separators{decimal: ".", thousands: ","}

func separatorsFrom(p Params) separators {
	sep := defaultSeparators
	if p.Decimal != "" {
		sep.decimal = p.Decimal
		if p.Decimal == "," {
			sep.thousands = "."
		}
	}
	if p.Thousands != "" {
		sep.thousands = p.Thousands
	}
	return sep
}

func (s separators) params() Params {
	return Params{Decimal: s.decimal, Thousands: s.thousands}
}

// detectSeparators guesses the separator convention from one number body.
// It returns false when the body does not decide the question, e.g. "1,200"
// or "1.200" which read differently under each convention.
func detectSeparators(body string) (separators, bool) {
	lastDot := strings.LastIndexByte(body, '.')
	lastComma := strings.LastIndexByte(body, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return separators{decimal: ",", thousands: "."}, true
		}
		return separators{decimal: ".", thousands: ","}, true

	case lastComma >= 0:
		if strings.Count(body, ",") > 1 {
			return separators{decimal: ".", thousands: ","}, true
		}
		if len(body)-lastComma-1 != 3 {
			return separators{decimal: ",", thousands: "."}, true
		}

	case lastDot >= 0:
		if strings.Count(body, ".") > 1 {
			return separators{decimal: ",", thousands: "."}, true
		}
		if len(body)-lastDot-1 != 3 {
			return separators{decimal: ".", thousands: ","}, true
		}
	}

	return separators{}, false
}

// fitSeparators freezes the first decisive convention found in samples.
func fitSeparators(samples []table.Cell, body func(string) string) Params {
	for _, c := range samples {
		if c.Kind != table.CellText {
			continue
		}
		if sep, ok := detectSeparators(body(c.Text)); ok {
			return sep.params()
		}
	}
	return defaultSeparators.params()
}

// normalizeDecimal rewrites s into Go float syntax under sep. Thousands groups
// are validated so "3,5" under a "." decimal convention fails instead of
// becoming 35.
func normalizeDecimal(s string, sep separators) (string, bool) {
	if s == "" {
		return "", false
	}

	sign := ""
	if s[0] == '+' || s[0] == '-' {
		sign, s = s[:1], s[1:]
	}

	intPart, frac, hasDecimal := s, "", false
	if i := strings.Index(s, sep.decimal); i >= 0 {
		intPart, frac, hasDecimal = s[:i], s[i+len(sep.decimal):], true
	}

	if sep.thousands != "" && strings.Contains(intPart, sep.thousands) {
		groups := strings.Split(intPart, sep.thousands)
		if !validGroups(groups) {
			return "", false
		}
		intPart = strings.Join(groups, "")
	}

	out := sign + intPart
	if hasDecimal {
		out += "." + frac
	}
	if !numericRegex.MatchString(out) {
		return "", false
	}
	return out, true
}

// validGroups checks thousands grouping: 1-3 leading digits, then groups of 3.
func validGroups(groups []string) bool {
	for i, g := range groups {
		if i == 0 && (len(g) == 0 || len(g) > 3) {
			return false
		}
		if i > 0 && len(g) != 3 {
			return false
		}
		for j := 0; j < len(g); j++ {
			if g[j] < '0' || g[j] > '9' {
				return false
			}
		}
	}
	return true
}

// scaledFloat parses a normalized number and scales it by 10^exp. Scaling is
// done in decimal where possible so "1.2M" is exactly 1200000.
func scaledFloat(norm string, exp int) (float64, bool) {
	if exp != 0 && !strings.ContainsAny(norm, "eE") {
		norm += "e" + strconv.Itoa(exp)
		exp = 0
	}
	f, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, false
	}
	for ; exp > 0; exp-- {
		f *= 10
	}
	for ; exp < 0; exp++ {
		f /= 10
	}
	return f, !math.IsInf(f, 0)
}

// ----------------------------------------------------------------------------
// Currency / magnitude
// ----------------------------------------------------------------------------

type amount struct {
	body     string
	negative bool
	marked   bool // currency symbol or magnitude suffix present
	exponent int
}

// splitAmount peels sign, accounting parentheses, currency symbol and
// magnitude suffix off a raw cell. Symbol and suffix are independent.
func splitAmount(raw string) amount {
	s := table.CleanCell(raw)
	var a amount

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		a.negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = a.takeSign(s)

	for _, sym := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			a.marked = true
			break
		}
		if strings.HasSuffix(s, sym) {
			s = strings.TrimSpace(strings.TrimSuffix(s, sym))
			a.marked = true
			break
		}
	}

	s = a.takeSign(s)

	if n := len(s); n > 1 {
		suffix := s[n-1]
		if suffix >= 'a' && suffix <= 'z' {
			suffix -= 'a' - 'A'
		}
		if exp, found := magnitudeExponents[suffix]; found && isNumberTail(s[n-2]) {
			a.exponent = exp
			a.marked = true
			s = strings.TrimSpace(s[:n-1])
		}
	}

	a.body = s
	return a
}

// takeSign strips a leading sign. A minus inside accounting parentheses,
// "(-5)", still reads as negative.
func (a *amount) takeSign(s string) string {
	switch {
	case strings.HasPrefix(s, "-"):
		a.negative = true
		return strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "+"):
		return strings.TrimSpace(s[1:])
	}
	return s
}

func isNumberTail(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == ',' || b == ' '
}

// CurrencyParser parses amounts with optional currency symbol and optional
// magnitude suffix. A bare number parses with reduced confidence so plain
// numeric columns prefer the numeric parser.
func CurrencyParser() Parser {
	return Parser{
		Kind:  KindCurrency,
		Parse: parseCurrency,
		Fit: func(samples []table.Cell, _ Config) (Params, bool) {
			return fitSeparators(samples, func(s string) string { return splitAmount(s).body }), true
		},
	}
}

func parseCurrency(c table.Cell, p Params) Result {
	if c.Kind == table.CellNumber {
		return numberCell(c, bareAmountConfidence)
	}

	a := splitAmount(c.Text)
	norm, valid := normalizeDecimal(a.body, separatorsFrom(p))
	if !valid {
		return fail(ReasonNotNumeric)
	}
	if a.negative {
		norm = negate(norm)
	}
	f, valid := scaledFloat(norm, a.exponent)
	if !valid {
		return fail(ReasonNotNumeric)
	}

	confidence := bareAmountConfidence
	if a.marked {
		confidence = markedAmountConfidence
	}
	return ok(table.NumberValue(f), confidence)
}

func negate(norm string) string {
	switch {
	case strings.HasPrefix(norm, "-"):
		return norm[1:]
	case strings.HasPrefix(norm, "+"):
		return "-" + norm[1:]
	}
	return "-" + norm
}

// ----------------------------------------------------------------------------
// Percentage
// ----------------------------------------------------------------------------

func percentBody(raw string) (string, bool) {
	s := table.CleanCell(raw)
	if !strings.HasSuffix(s, "%") {
		return s, false
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "%")), true
}

// PercentageParser parses "12.5%" as 0.125. The trailing % is required.
func PercentageParser() Parser {
	return Parser{
		Kind:  KindPercentage,
		Parse: parsePercentage,
		Fit: func(samples []table.Cell, _ Config) (Params, bool) {
			return fitSeparators(samples, func(s string) string {
				body, _ := percentBody(s)
				return body
			}), true
		},
	}
}

func parsePercentage(c table.Cell, p Params) Result {
	if c.Kind != table.CellText {
		return fail(ReasonNotPercentage)
	}
	body, found := percentBody(c.Text)
	if !found {
		return fail(ReasonNotPercentage)
	}
	norm, valid := normalizeDecimal(body, separatorsFrom(p))
	if !valid {
		return fail(ReasonNotNumeric)
	}
	f, valid := scaledFloat(norm, -2)
	if !valid {
		return fail(ReasonNotNumeric)
	}
	return ok(table.NumberValue(f), 1.0)
}

// ----------------------------------------------------------------------------
// Plain numeric
// ----------------------------------------------------------------------------

// NumericParser parses plain numbers under the column's separator convention.
func NumericParser() Parser {
	return Parser{
		Kind:  KindNumeric,
		Parse: parseNumeric,
		Fit: func(samples []table.Cell, _ Config) (Params, bool) {
			return fitSeparators(samples, table.CleanCell), true
		},
	}
}

func parseNumeric(c table.Cell, p Params) Result {
	if c.Kind == table.CellNumber {
		return numberCell(c, 1.0)
	}
	norm, valid := normalizeDecimal(table.CleanCell(c.Text), separatorsFrom(p))
	if !valid {
		return fail(ReasonNotNumeric)
	}
	f, valid := scaledFloat(norm, 0)
	if !valid {
		return fail(ReasonNotNumeric)
	}
	return ok(table.NumberValue(f), 1.0)
}

// numberCell accepts a numeric cell. NaN is missing before this point;
// infinities fail.
func numberCell(c table.Cell, confidence float64) Result {
	if math.IsInf(c.Num, 0) {
		return fail(ReasonNotNumeric)
	}
	return ok(table.NumberValue(c.Num), confidence)
}
