// Package domain holds the core value types shared across modules.
package domain

import "fmt"

// Instrument is one of the three value-holding channels tracked by a drawer:
// local-currency cash, foreign-currency cash, and the mobile-payment balance.
type Instrument string

const (
	LocalCash     Instrument = "LOCAL_CASH"
	ForeignCash   Instrument = "FOREIGN_CASH"
	MobilePayment Instrument = "MOBILE_PAYMENT"
)

// Instruments lists all instruments in canonical order.
func Instruments() []Instrument {
	return []Instrument{LocalCash, ForeignCash, MobilePayment}
}

// ParseInstrument validates an instrument string from the network boundary.
func ParseInstrument(s string) (Instrument, error) {
	switch Instrument(s) {
	case LocalCash, ForeignCash, MobilePayment:
		return Instrument(s), nil
	}
	return "", fmt.Errorf("unknown instrument %q", s)
}

// TransactionKind is the direction of a drawer transaction.
type TransactionKind string

const (
	KindIncome  TransactionKind = "INCOME"
	KindExpense TransactionKind = "EXPENSE"
)
