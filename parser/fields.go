package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AbdallahFarid/ocr2/models"
)

// Result is the outcome of one grammar application. Parsing is binary: a
// full grammar match yields a normalized value, anything else yields no
// value and an error token. Partial matches are never normalized silently.
type Result struct {
	Norm string
	OK   bool
	Err  string
}

func parseFail(err string) Result { return Result{OK: false, Err: err} }

var (
	dateRx   = regexp.MustCompile(`(?i)\b(\d{1,2})\s*[\-/.]\s*([A-Za-z0-9]{3})\s*[\-/.]\s*(\d{2,4})\b`)
	amountRx = regexp.MustCompile(`\b\d+(?:[.,]\d{3})*(?:[.,]\d{2})?\b`)
	chequeRx = regexp.MustCompile(`\b\d{6,}\b`)
	ibanRx   = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)
	spacesRx = regexp.MustCompile(`\s+`)
)

// monthMap includes OCR-tolerant aliases: a zero glyph is commonly read in
// place of 'O' (OCT) or 'D' (DEC).
var monthMap = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
	"0CT": 10, "0EC": 12, "N0V": 11,
}

// arabicIndicDigits maps Eastern Arabic numerals to ASCII.
var arabicIndicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// NormalizeDigits converts Arabic-Indic digits to ASCII digits.
func NormalizeDigits(text string) string {
	return arabicIndicDigits.Replace(text)
}

// ParseDate extracts a d-MMM-yy(yy) date and normalizes it to YYYY-MM-DD.
func ParseDate(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := NormalizeDigits(text)
	m := dateRx.FindStringSubmatch(s)
	if m == nil {
		return parseFail("NO_MATCH")
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}
	monU := strings.ToUpper(strings.TrimSpace(m[2]))
	month := 0
	for _, alias := range []string{monU, strings.ReplaceAll(monU, "0", "O"), strings.ReplaceAll(monU, "0", "D")} {
		if v, ok := monthMap[alias]; ok {
			month = v
			break
		}
	}
	if month == 0 {
		return parseFail("BAD_MONTH")
	}
	if day < 1 || day > 31 {
		return parseFail("BAD_DAY")
	}
	return Result{Norm: fmt.Sprintf("%04d-%02d-%02d", year, month, day), OK: true}
}

// ParseAmount extracts a monetary token and normalizes it to a decimal
// string with two fractional digits. Separator disambiguation: the last
// '.' or ',' is the decimal point when exactly two digits follow it;
// otherwise all separators are treated as grouping.
func ParseAmount(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := NormalizeDigits(text)
	token := amountRx.FindString(s)
	if token == "" {
		token = regexp.MustCompile(`[^\d.,]`).ReplaceAllString(s, "")
		if token == "" {
			return parseFail("NO_MATCH")
		}
	}
	idx := strings.LastIndexAny(token, ".,")
	var valStr string
	if idx != -1 && len(token)-idx-1 == 2 {
		frac := token[idx+1:]
		intPart := strings.NewReplacer(".", "", ",", "").Replace(token[:idx])
		if isDigits(frac) && isDigits(intPart) && intPart != "" {
			valStr = intPart + "." + frac
		}
	}
	if valStr == "" {
		digits := regexp.MustCompile(`\D`).ReplaceAllString(token, "")
		if digits == "" {
			return parseFail("BAD_NUMBER")
		}
		valStr = digits + ".00"
	}
	d, err := decimal.NewFromString(valStr)
	if err != nil {
		return parseFail("BAD_NUMBER")
	}
	return Result{Norm: d.StringFixed(2), OK: true}
}

// ParseChequeNumber extracts the machine-readable cheque number: the first
// run of six or more digits.
func ParseChequeNumber(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := NormalizeDigits(text)
	m := chequeRx.FindString(s)
	if m == "" {
		return parseFail("NO_MATCH")
	}
	return Result{Norm: m, OK: true}
}

// NormalizeName collapses whitespace in a free-text payee name.
func NormalizeName(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := strings.TrimSpace(spacesRx.ReplaceAllString(text, " "))
	if len([]rune(s)) < 3 {
		return parseFail("TOO_SHORT")
	}
	return Result{Norm: s, OK: true}
}

// ParseIBAN extracts and normalizes an IBAN: upper-case, no spaces.
func ParseIBAN(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := strings.ToUpper(strings.ReplaceAll(NormalizeDigits(text), " ", ""))
	m := ibanRx.FindString(s)
	if m == "" {
		return parseFail("NO_MATCH")
	}
	return Result{Norm: m, OK: true}
}

var currencyRx = regexp.MustCompile(`\b[A-Z]{3}\b`)

// ParseCurrency extracts an ISO 4217-style three-letter currency token.
func ParseCurrency(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	m := currencyRx.FindString(strings.ToUpper(text))
	if m == "" {
		return parseFail("NO_MATCH")
	}
	return Result{Norm: m, OK: true}
}

// ParseAndNormalize applies the grammar selected for the field.
// Grammar names match models.FieldSpec.Grammar.
func ParseAndNormalize(grammar, text string) Result {
	switch grammar {
	case "date":
		return ParseDate(text)
	case "amount":
		return ParseAmount(text)
	case "amount_words":
		return ParseAmountWords(text)
	case "cheque_number":
		return ParseChequeNumber(text)
	case "name":
		return NormalizeName(text)
	case "currency":
		return ParseCurrency(text)
	case "iban":
		return ParseIBAN(text)
	case models.FieldBankName:
		s := strings.TrimSpace(text)
		if s == "" {
			return parseFail("EMPTY")
		}
		return Result{Norm: s, OK: true}
	}
	return parseFail("NO_GRAMMAR")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
