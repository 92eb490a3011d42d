package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeDebit      LedgerEntryType = "debit"
	LedgerEntryTypeCredit     LedgerEntryType = "credit"
	LedgerEntryTypeAdjustment LedgerEntryType = "adjustment"
	LedgerEntryTypeReversal   LedgerEntryType = "reversal"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeDebit,
	LedgerEntryTypeCredit,
	LedgerEntryTypeAdjustment,
	LedgerEntryTypeReversal,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Sign returns the multiplier applied to the entry amount when deriving the
// outstanding balance: debits raise it, credits and reversals lower it.
// Adjustments carry their own sign in the amount.
func (t LedgerEntryType) Sign() int64 {
	switch t {
	case LedgerEntryTypeDebit:
		return 1
	case LedgerEntryTypeCredit, LedgerEntryTypeReversal:
		return -1
	case LedgerEntryTypeAdjustment:
		return 1
	default:
		return 0
	}
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
