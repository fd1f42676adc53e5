package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Spelled-out amount grammar. Handles the courtesy-line style found on
// cheques: "Eight Hundred Seventeen Thousand Four Hundred Ten and 10/100",
// "one thousand two hundred fifty only", "twelve pounds 50/100".

var wordUnits = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var wordScales = map[string]int64{
	"hundred":  100,
	"thousand": 1_000,
	"million":  1_000_000,
	"billion":  1_000_000_000,
}

// fillerWords are tokens that may appear in the courtesy line but carry no
// numeric meaning.
var fillerWords = map[string]bool{
	"and": true, "only": true, "pounds": true, "pound": true,
	"dollars": true, "dollar": true, "egp": true, "usd": true, "eur": true,
	"aed": true, "sar": true, "egyptian": true, "us": true, "no": true,
}

var fractionRx = regexp.MustCompile(`\b(\d{1,2})\s*/\s*100\b`)
var splitRx = regexp.MustCompile(`[\s\-]+`)

// ParseAmountWords parses a spelled-out amount into a decimal string with
// two fractional digits. The cents part may be given as NN/100.
func ParseAmountWords(text string) Result {
	if text == "" {
		return parseFail("EMPTY")
	}
	s := strings.ToLower(NormalizeDigits(text))

	cents := int64(0)
	if m := fractionRx.FindStringSubmatch(s); m != nil {
		n, _ := decimal.NewFromString(m[1])
		cents = n.IntPart()
		s = fractionRx.ReplaceAllString(s, " ")
	}

	total := int64(0)
	current := int64(0)
	sawNumber := false
	for _, tok := range splitRx.Split(s, -1) {
		tok = strings.Trim(tok, ".,;:")
		if tok == "" || fillerWords[tok] {
			continue
		}
		if v, ok := wordUnits[tok]; ok {
			current += v
			sawNumber = true
			continue
		}
		if scale, ok := wordScales[tok]; ok {
			if !sawNumber {
				return parseFail("BAD_SCALE")
			}
			if scale == 100 {
				if current == 0 {
					current = 1
				}
				current *= scale
			} else {
				if current == 0 {
					current = 1
				}
				total += current * scale
				current = 0
			}
			continue
		}
		return parseFail("UNKNOWN_WORD")
	}
	if !sawNumber {
		return parseFail("NO_MATCH")
	}
	total += current

	d := decimal.New(total, 0).Add(decimal.New(cents, -2))
	return Result{Norm: d.StringFixed(2), OK: true}
}

// CrossCheckAmounts reports whether the normalized numeric amount and the
// normalized spelled amount agree. Both inputs are decimal strings.
func CrossCheckAmounts(numericNorm, wordsNorm string) bool {
	a, errA := decimal.NewFromString(numericNorm)
	b, errB := decimal.NewFromString(wordsNorm)
	if errA != nil || errB != nil {
		return false
	}
	return a.Equal(b)
}
