package validation

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdallahFarid/ocr2/models"
)

func TestValidateDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Code
	}{
		{"valid date", "2026-03-15", CodeOK},
		{"empty", "", CodeDateEmpty},
		{"wrong shape", "15/03/2026", CodeDateInvalid},
		{"impossible day", "2026-02-31", CodeDateInvalid},
		{"year below window", "1999-01-01", CodeDateRange},
		{"year above window", "2101-01-01", CodeDateRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateDate(tt.value, 2000, 2100)
			assert.Equal(t, tt.want, res.Code)
			assert.Equal(t, tt.want == CodeOK, res.OK)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	min := decimal.NewFromFloat(0.01)
	max := decimal.New(1, 9) // 1e9

	tests := []struct {
		name  string
		value string
		want  Code
	}{
		{"valid", "817410.00", CodeOK},
		{"minimum", "0.01", CodeOK},
		{"empty", "", CodeAmountEmpty},
		{"zero", "0.00", CodeAmountNonPos},
		{"negative", "-5.00", CodeAmountNonPos},
		{"above max", "1000000000.01", CodeAmountRange},
		{"not a number", "12a.00", CodeAmountRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAmount(tt.value, min, max).Code)
		})
	}
}

func TestValidateChequeNumber(t *testing.T) {
	cib := regexp.MustCompile(`^\d{12}$`)

	tests := []struct {
		name    string
		value   string
		pattern *regexp.Regexp
		want    Code
	}{
		{"matches bank pattern", "123456789012", cib, CodeOK},
		{"too short for bank pattern", "12345678", cib, CodeChequePattern},
		{"ocr noise stripped before match", "1234-5678 9012", cib, CodeOK},
		{"generic length accepted", "12345678", nil, CodeOK},
		{"generic too short", "12345", nil, CodeChequePattern},
		{"empty", "", nil, CodeChequeEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateChequeNumber(tt.value, tt.pattern, 6, 16).Code)
		})
	}
}

func TestValidatePayee(t *testing.T) {
	registry := []string{"Misr Insurance Company", "Orange Egypt"}

	tests := []struct {
		name  string
		value string
		want  Code
	}{
		{"exact registry match", "Misr Insurance Company", CodeOK},
		{"near match above threshold", "Misr Insurnce Company", CodeOK},
		{"not in registry", "Totally Different Name", CodePayeeNotInMaster},
		{"too short", "ab", CodePayeeTooShort},
		{"empty", "   ", CodePayeeEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePayee(tt.value, registry, 0.85).Code)
		})
	}

	t.Run("empty registry disables fuzzy check", func(t *testing.T) {
		assert.True(t, ValidatePayee("Anyone At All", nil, 0.85).OK)
	})
}

func TestValidateCurrency(t *testing.T) {
	allowed := []string{"EGP", "USD", "EUR"}
	assert.True(t, ValidateCurrency("EGP", allowed).OK)
	assert.True(t, ValidateCurrency(" usd ", allowed).OK)
	assert.Equal(t, CodeCurrencyInvalid, ValidateCurrency("GBP", allowed).Code)
	assert.Equal(t, CodeCurrencyInvalid, ValidateCurrency("", allowed).Code)
}

func TestValidateIBAN(t *testing.T) {
	// Standard ISO 13616 example with a valid checksum.
	assert.True(t, ValidateIBAN("GB82WEST12345698765432").OK)
	assert.Equal(t, CodeIBANChecksum, ValidateIBAN("GB82WEST12345698765431").Code)
	assert.Equal(t, CodeIBANPattern, ValidateIBAN("NOT-AN-IBAN").Code)
	assert.Equal(t, CodeIBANEmpty, ValidateIBAN("").Code)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("same", "same"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 0.75, Similarity("abcd", "abcx"), 1e-9)
}

func TestCompileParams(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		gp, err := CompileParams(models.ValidationParams{})
		require.NoError(t, err)
		assert.Equal(t, 6, gp.ChequeLenMin)
		assert.Equal(t, 16, gp.ChequeLenMax)
		assert.Equal(t, 0.85, gp.PayeeThreshold)
		assert.True(t, gp.MinAmount.Equal(decimal.NewFromFloat(0.01)))
	})

	t.Run("bad cheque pattern rejected", func(t *testing.T) {
		_, err := CompileParams(models.ValidationParams{ChequePattern: `^\d{(`})
		assert.Error(t, err)
	})

	t.Run("bad amount rejected", func(t *testing.T) {
		_, err := CompileParams(models.ValidationParams{MaxAmount: "lots"})
		assert.Error(t, err)
	})
}

func TestValidateField(t *testing.T) {
	gp, err := CompileParams(models.ValidationParams{
		DateMinYear: 2000,
		DateMaxYear: 2100,
		Currencies:  []string{"EGP"},
	})
	require.NoError(t, err)

	assert.True(t, ValidateField(models.FieldDate, "2026-01-31", gp).OK)
	assert.True(t, ValidateField(models.FieldAmountNumeric, "100.00", gp).OK)
	assert.True(t, ValidateField(models.FieldChequeNumber, "12345678", gp).OK)
	assert.True(t, ValidateField(models.FieldPayeeName, "Orange Egypt", gp).OK)
	assert.True(t, ValidateField(models.FieldCurrency, "EGP", gp).OK)
	// Fields without a gate always pass.
	assert.True(t, ValidateField(models.FieldBankName, "CIB", gp).OK)
}
