package validation

// Code is a machine-readable reason code emitted by a validation gate.
type Code string

const (
	CodeOK Code = "OK"

	// Date
	CodeDateEmpty   Code = "DATE_EMPTY"
	CodeDateRange   Code = "DATE_RANGE"
	CodeDateInvalid Code = "DATE_INVALID"

	// Amount
	CodeAmountEmpty  Code = "AMOUNT_EMPTY"
	CodeAmountNonPos Code = "AMOUNT_NONPOS"
	CodeAmountRange  Code = "AMOUNT_RANGE"

	// Cheque number
	CodeChequeEmpty   Code = "CHEQUE_EMPTY"
	CodeChequePattern Code = "CHEQUE_PATTERN"

	// Payee
	CodePayeeEmpty       Code = "PAYEE_EMPTY"
	CodePayeeTooShort    Code = "PAYEE_TOO_SHORT"
	CodePayeeNotInMaster Code = "PAYEE_NOT_IN_MASTER"

	// Currency
	CodeCurrencyInvalid Code = "CURRENCY_INVALID"

	// IBAN
	CodeIBANEmpty    Code = "IBAN_EMPTY"
	CodeIBANPattern  Code = "IBAN_PATTERN"
	CodeIBANChecksum Code = "IBAN_CHECKSUM"
)

// ReasonAmountWordMismatch is recorded when the spelled-out amount and the
// numeric amount both parse but disagree after normalization. It is a parse
// failure cause, distinct from the gate codes above.
const ReasonAmountWordMismatch = "amount_word_numeric_mismatch"
