package enums

import "fmt"

// LedgerEntryType classifies a point debit recorded in ledger_entries.
type LedgerEntryType string

const (
	LedgerEntryTypeRentalCharge        LedgerEntryType = "rental_charge"
	LedgerEntryTypeExtensionCharge     LedgerEntryType = "extension_charge"
	LedgerEntryTypeLateFee             LedgerEntryType = "late_fee"
	LedgerEntryTypeSettlementDeduction LedgerEntryType = "settlement_deduction"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeRentalCharge,
	LedgerEntryTypeExtensionCharge,
	LedgerEntryTypeLateFee,
	LedgerEntryTypeSettlementDeduction,
}

// IsValid reports whether the value matches a known ledger entry type.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
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
