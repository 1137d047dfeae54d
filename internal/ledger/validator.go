package ledger

import (
	"fmt"
	"sort"
)

// IntegrityReport is the outcome of CheckIntegrity.
type IntegrityReport struct {
	Valid        bool     `json:"valid"`
	Violations   []string `json:"violations"`
	Transactions int      `json:"transactions"`
	Accounts     int      `json:"accounts"`
}

// CheckIntegrity replays the transaction log from the opening balances and
// compares the result against the live balances. It also checks log shape
// (sequence, monotone timestamps, payload/type agreement, amounts) and that
// every tax record follows the earn it was withheld from. Read-only.
func (l *Ledger) CheckIntegrity() IntegrityReport {
	v := NewInvariantValidator(l)
	violations := v.Collect()
	return IntegrityReport{
		Valid:        len(violations) == 0,
		Violations:   violations,
		Transactions: len(l.Transactions),
		Accounts:     len(l.Balances),
	}
}

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	ledger *Ledger
}

func NewInvariantValidator(l *Ledger) *InvariantValidator {
	return &InvariantValidator{ledger: l}
}

// Collect runs every check and returns all violations found.
func (v *InvariantValidator) Collect() []string {
	violations := make([]string, 0)
	for _, check := range []func() error{
		v.ValidateTreasuryNonNegative,
		v.ValidateConservation,
		v.ValidateLogShape,
		v.ValidateReplay,
		v.ValidateAuctions,
	} {
		if err := check(); err != nil {
			violations = append(violations, err.Error())
		}
	}
	return violations
}

// ValidateTreasuryNonNegative checks TREASURY >= 0
func (v *InvariantValidator) ValidateTreasuryNonNegative() error {
	if b := v.ledger.Balance(TreasuryAccount); b < 0 {
		return fmt.Errorf("treasury balance is negative: %d", b)
	}
	return nil
}

// ValidateConservation checks that circulating Spark equals the opening
// supply plus everything minted by SYSTEM minus everything destroyed to it.
func (v *InvariantValidator) ValidateConservation() error {
	var supply int64
	for _, b := range v.ledger.Opening {
		supply += b
	}
	for i := range v.ledger.Transactions {
		tx := &v.ledger.Transactions[i]
		if tx.From == SystemAccount {
			supply += tx.Amount
		}
		if tx.To == SystemAccount {
			supply -= tx.Amount
		}
	}
	if circulating := v.ledger.TotalCirculating(); circulating != supply {
		return fmt.Errorf("conservation broken: circulating=%d, issued-destroyed=%d", circulating, supply)
	}
	return nil
}

// ValidateLogShape checks sequence numbers, timestamps, amounts, payloads,
// and tax-to-earn links.
func (v *InvariantValidator) ValidateLogShape() error {
	earnIDs := make(map[string]struct{})
	var lastTS int64

	for i := range v.ledger.Transactions {
		tx := &v.ledger.Transactions[i]

		if tx.Seq != int64(i)+1 {
			return fmt.Errorf("tx %s: seq %d at position %d", tx.ID, tx.Seq, i+1)
		}
		if tx.Amount < 0 {
			return fmt.Errorf("tx %s: negative amount %d", tx.ID, tx.Amount)
		}
		if tx.Timestamp < lastTS {
			return fmt.Errorf("tx %s: timestamp %d before previous %d", tx.ID, tx.Timestamp, lastTS)
		}
		lastTS = tx.Timestamp

		p := tx.Payload()
		if p == nil || isNilPayload(p) {
			return fmt.Errorf("tx %s: missing %s payload", tx.ID, tx.Type)
		}

		switch tx.Type {
		case TxTypeEarn:
			if tx.From != SystemAccount {
				return fmt.Errorf("tx %s: earn not issued by SYSTEM", tx.ID)
			}
			if tx.Earn.Gross != tx.Amount || tx.Earn.Net+tx.Earn.Tax != tx.Earn.Gross {
				return fmt.Errorf("tx %s: earn split %d+%d does not match gross %d",
					tx.ID, tx.Earn.Net, tx.Earn.Tax, tx.Amount)
			}
			earnIDs[tx.ID] = struct{}{}
		case TxTypeTax:
			if tx.To != TreasuryAccount {
				return fmt.Errorf("tx %s: tax not paid to TREASURY", tx.ID)
			}
			if _, ok := earnIDs[tx.Tax.EarnTxID]; !ok {
				return fmt.Errorf("tx %s: tax references unknown earn %s", tx.ID, tx.Tax.EarnTxID)
			}
		case TxTypeSpend:
			if tx.To != SystemAccount {
				return fmt.Errorf("tx %s: spend not destroyed to SYSTEM", tx.ID)
			}
		case TxTypeUBI:
			if tx.From != TreasuryAccount {
				return fmt.Errorf("tx %s: ubi not paid from TREASURY", tx.ID)
			}
		case TxTypeWealthTax:
			if tx.To != TreasuryAccount {
				return fmt.Errorf("tx %s: wealth tax not paid to TREASURY", tx.ID)
			}
		}
	}
	return nil
}

// ValidateReplay rebuilds balances from Opening and the log and compares
// them to the live balances.
func (v *InvariantValidator) ValidateReplay() error {
	replayed := make(map[string]int64, len(v.ledger.Opening))
	for k, b := range v.ledger.Opening {
		replayed[k] = b
	}
	for i := range v.ledger.Transactions {
		tx := &v.ledger.Transactions[i]
		if tx.From != SystemAccount {
			replayed[tx.From] -= tx.Amount
		}
		if tx.To != SystemAccount {
			replayed[tx.To] += tx.Amount
		}
	}

	accounts := make(map[string]struct{}, len(replayed)+len(v.ledger.Balances))
	for k := range replayed {
		accounts[k] = struct{}{}
	}
	for k := range v.ledger.Balances {
		accounts[k] = struct{}{}
	}

	ids := make([]string, 0, len(accounts))
	for k := range accounts {
		ids = append(ids, k)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if replayed[id] != v.ledger.Balances[id] {
			return fmt.Errorf("balance mismatch for %s: replayed=%d, live=%d",
				id, replayed[id], v.ledger.Balances[id])
		}
	}
	return nil
}

// ValidateAuctions checks a terminal auction's bid history is consistent.
func (v *InvariantValidator) ValidateAuctions() error {
	for i := range v.ledger.Auctions {
		a := &v.ledger.Auctions[i]
		var prev int64
		for j, b := range a.Bids {
			if j > 0 && b.Amount <= prev {
				return fmt.Errorf("auction %s: bid %d does not exceed previous (%d <= %d)", a.ID, j, b.Amount, prev)
			}
			prev = b.Amount
		}
		if len(a.Bids) > 0 && a.CurrentBid != prev {
			return fmt.Errorf("auction %s: current bid %d does not match last bid %d", a.ID, a.CurrentBid, prev)
		}
		if a.Status == AuctionStatusSold && a.SettlementTx == "" {
			return fmt.Errorf("auction %s: sold without settlement transaction", a.ID)
		}
	}
	return nil
}

func isNilPayload(p Payload) bool {
	switch d := p.(type) {
	case *EarnDetails:
		return d == nil
	case *TaxDetails:
		return d == nil
	case *SpendDetails:
		return d == nil
	case *TransferDetails:
		return d == nil
	case *PurchaseDetails:
		return d == nil
	case *UBIDetails:
		return d == nil
	case *WealthTaxDetails:
		return d == nil
	case *AuctionDetails:
		return d == nil
	}
	return true
}
