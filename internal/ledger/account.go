package ledger

import (
	"fmt"
	"strings"
)

// Reserved account identifiers.
const (
	// TreasuryAccount accumulates tax revenue and funds UBI.
	TreasuryAccount = "TREASURY"

	// SystemAccount is the issuance source and destruction sink. It never
	// holds a balance: Spark received by SYSTEM is destroyed.
	SystemAccount = "SYSTEM"
)

// MaxAccountIDLength bounds player identifiers.
const MaxAccountIDLength = 128

// IsReserved reports whether id is one of the reserved system accounts.
func IsReserved(id string) bool {
	return id == TreasuryAccount || id == SystemAccount
}

// ValidatePlayerID checks that id can be used as a player account.
func ValidatePlayerID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty account id", ErrInvalidAccount)
	}
	if len(id) > MaxAccountIDLength {
		return fmt.Errorf("%w: account id longer than %d bytes", ErrInvalidAccount, MaxAccountIDLength)
	}
	if IsReserved(id) {
		return fmt.Errorf("%w: %s", ErrReservedAccount, id)
	}
	return nil
}
