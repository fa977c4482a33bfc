package enums

import "fmt"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeCredit     TransactionType = "CREDIT"
	TransactionTypeDebit      TransactionType = "DEBIT"
	TransactionTypeEscrow     TransactionType = "ESCROW"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeCredit,
	TransactionTypeDebit,
	TransactionTypeEscrow,
	TransactionTypeWithdrawal,
}

// IsValid reports whether the value matches a known ledger entry type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Sign returns +1 for entries that add to a balance and -1 for entries that subtract.
func (t TransactionType) Sign() int {
	switch t {
	case TransactionTypeCredit, TransactionTypeEscrow:
		return 1
	case TransactionTypeDebit, TransactionTypeWithdrawal:
		return -1
	}
	return 0
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// BalanceField names which wallet balance a ledger entry moves.
type BalanceField string

const (
	BalanceFieldAvailable BalanceField = "available"
	BalanceFieldPending   BalanceField = "pending"
)

// IsValid reports whether the field is a known wallet balance.
func (f BalanceField) IsValid() bool {
	return f == BalanceFieldAvailable || f == BalanceFieldPending
}

// Column returns the users table column backing the field.
func (f BalanceField) Column() string {
	if f == BalanceFieldPending {
		return "pending_balance"
	}
	return "available_balance"
}
