package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AbdallahFarid/ocr2/models"
)

// Result is the outcome of a single gate: pass/fail plus a reason code.
// Gates only annotate values; they never mutate them.
type Result struct {
	OK   bool
	Code Code
}

func pass() Result          { return Result{OK: true, Code: CodeOK} }
func fail(code Code) Result { return Result{OK: false, Code: code} }

var dateRx = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// ValidateDate checks a normalized YYYY-MM-DD value against the configured
// plausibility window.
func ValidateDate(value string, minYear, maxYear int) Result {
	if value == "" {
		return fail(CodeDateEmpty)
	}
	m := dateRx.FindStringSubmatch(value)
	if m == nil {
		return fail(CodeDateInvalid)
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return fail(CodeDateInvalid)
	}
	if t.Year() < minYear || t.Year() > maxYear {
		return fail(CodeDateRange)
	}
	return pass()
}

// ValidateAmount checks a normalized decimal amount string: non-empty,
// strictly positive and within [min, max].
func ValidateAmount(value string, min, max decimal.Decimal) Result {
	if value == "" {
		return fail(CodeAmountEmpty)
	}
	amt, err := decimal.NewFromString(value)
	if err != nil {
		return fail(CodeAmountRange)
	}
	if amt.Sign() <= 0 {
		return fail(CodeAmountNonPos)
	}
	if amt.LessThan(min) || amt.GreaterThan(max) {
		return fail(CodeAmountRange)
	}
	return pass()
}

var nonDigitRx = regexp.MustCompile(`\D+`)

// ValidateChequeNumber checks the digits of a cheque number against the
// bank's known pattern when one is configured, falling back to a generic
// length range.
func ValidateChequeNumber(value string, pattern *regexp.Regexp, lenMin, lenMax int) Result {
	if value == "" {
		return fail(CodeChequeEmpty)
	}
	digits := nonDigitRx.ReplaceAllString(value, "")
	if pattern != nil {
		if !pattern.MatchString(digits) {
			return fail(CodeChequePattern)
		}
		return pass()
	}
	if len(digits) < lenMin || len(digits) > lenMax {
		return fail(CodeChequePattern)
	}
	return pass()
}

var spacesRx = regexp.MustCompile(`\s+`)

// ValidatePayee checks the payee name against the maintained registry using
// fuzzy matching above the configured similarity threshold. An empty
// registry disables the registry check (length still applies).
func ValidatePayee(name string, registry []string, threshold float64) Result {
	s := spacesRx.ReplaceAllString(strings.TrimSpace(name), " ")
	if s == "" {
		return fail(CodePayeeEmpty)
	}
	if len([]rune(s)) < 3 {
		return fail(CodePayeeTooShort)
	}
	if len(registry) == 0 {
		return pass()
	}
	best := 0.0
	for _, cand := range registry {
		if r := Similarity(s, cand); r > best {
			best = r
		}
	}
	if best >= threshold {
		return pass()
	}
	return fail(CodePayeeNotInMaster)
}

// ValidateCurrency checks the currency code against the allow-list.
func ValidateCurrency(currency string, allowed []string) Result {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return fail(CodeCurrencyInvalid)
	}
	for _, a := range allowed {
		if c == a {
			return pass()
		}
	}
	return fail(CodeCurrencyInvalid)
}

var ibanRx = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{10,30}$`)

// ValidateIBAN checks the normalized IBAN shape and its mod-97 checksum.
func ValidateIBAN(value string) Result {
	if value == "" {
		return fail(CodeIBANEmpty)
	}
	if !ibanRx.MatchString(value) {
		return fail(CodeIBANPattern)
	}
	if ibanMod97(value) != 1 {
		return fail(CodeIBANChecksum)
	}
	return pass()
}

// ibanMod97 computes the ISO 13616 checksum: move the first four characters
// to the end, expand letters to two digits, reduce mod 97.
func ibanMod97(iban string) int {
	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			rem = (rem*10 + int(ch-'0')) % 97
		case ch >= 'A' && ch <= 'Z':
			n := int(ch-'A') + 10
			rem = (rem*100 + n) % 97
		default:
			return 0
		}
	}
	return rem
}

// Similarity returns a Levenshtein ratio in [0,1]: 1 − distance/maxLen.
// Deterministic and language-agnostic, used for payee registry matching.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	d := levenshtein(ra, rb)
	return 1.0 - float64(d)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// GateParams carries the compiled per-bank validation configuration.
type GateParams struct {
	DateMinYear    int
	DateMaxYear    int
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	ChequePattern  *regexp.Regexp
	ChequeLenMin   int
	ChequeLenMax   int
	Currencies     []string
	PayeeRegistry  []string
	PayeeThreshold float64
}

// CompileParams builds GateParams from a template's ValidationParams.
// Malformed parameters surface as an error so templates are rejected at
// publish time, never mid-pipeline.
func CompileParams(p models.ValidationParams) (GateParams, error) {
	gp := GateParams{
		DateMinYear:    p.DateMinYear,
		DateMaxYear:    p.DateMaxYear,
		ChequeLenMin:   p.ChequeLenMin,
		ChequeLenMax:   p.ChequeLenMax,
		Currencies:     p.Currencies,
		PayeeRegistry:  p.PayeeRegistry,
		PayeeThreshold: p.PayeeThreshold,
	}
	var err error
	if p.MinAmount != "" {
		if gp.MinAmount, err = decimal.NewFromString(p.MinAmount); err != nil {
			return GateParams{}, err
		}
	} else {
		gp.MinAmount = decimal.NewFromFloat(0.01)
	}
	if p.MaxAmount != "" {
		if gp.MaxAmount, err = decimal.NewFromString(p.MaxAmount); err != nil {
			return GateParams{}, err
		}
	} else {
		gp.MaxAmount = decimal.New(1, 9)
	}
	if p.ChequePattern != "" {
		if gp.ChequePattern, err = regexp.Compile(p.ChequePattern); err != nil {
			return GateParams{}, err
		}
	}
	if gp.ChequeLenMin == 0 {
		gp.ChequeLenMin = 6
	}
	if gp.ChequeLenMax == 0 {
		gp.ChequeLenMax = 16
	}
	if gp.PayeeThreshold == 0 {
		gp.PayeeThreshold = 0.85
	}
	return gp, nil
}

// ValidateField runs every applicable gate for the named field against its
// normalized value. The field is valid only if all gates pass; the first
// failing code is reported.
func ValidateField(field string, normalized string, gp GateParams) Result {
	switch field {
	case models.FieldDate:
		return ValidateDate(normalized, gp.DateMinYear, gp.DateMaxYear)
	case models.FieldAmountNumeric, models.FieldAmountWords:
		return ValidateAmount(normalized, gp.MinAmount, gp.MaxAmount)
	case models.FieldChequeNumber:
		return ValidateChequeNumber(normalized, gp.ChequePattern, gp.ChequeLenMin, gp.ChequeLenMax)
	case models.FieldPayeeName:
		return ValidatePayee(normalized, gp.PayeeRegistry, gp.PayeeThreshold)
	case models.FieldCurrency:
		return ValidateCurrency(normalized, gp.Currencies)
	case models.FieldIBAN:
		return ValidateIBAN(normalized)
	}
	return pass()
}
