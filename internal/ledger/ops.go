package ledger

import (
	"SparkLedger/internal/earn"
	"SparkLedger/internal/events"
	fpmath "SparkLedger/internal/math"
	"fmt"
)

// EarnResult describes a committed earn.
type EarnResult struct {
	Earned   int64      `json:"earned"` // Net credited to the player
	Gross    int64      `json:"gross"`
	Tax      int64      `json:"tax"`
	Rate     fpmath.Bps `json:"rate_bps"`
	Event    string     `json:"event,omitempty"`
	EarnTxID string     `json:"earn_tx_id,omitempty"`
	TaxTxID  string     `json:"tax_tx_id,omitempty"` // Empty when no tax was withheld
}

// SpendResult describes a committed spend.
type SpendResult struct {
	Balance int64  `json:"balance"`
	TxID    string `json:"tx_id"`
}

// TransferResult describes a committed transfer.
type TransferResult struct {
	FromBalance int64  `json:"from_balance"`
	ToBalance   int64  `json:"to_balance"`
	TxID        string `json:"tx_id"`
}

// Earn issues Spark to player for an activity. This is the only operation
// that increases total circulating Spark.
//
// Gross is the catalog value with the day's event multiplier applied. Tax is
// taken at the bracket of the balance BEFORE this credit; the player nets
// gross-tax and TREASURY receives tax. A non-positive gross is a no-op that
// returns a zero result and no error.
func (l *Ledger) Earn(player, activity string, details earn.Details) (EarnResult, error) {
	if err := ValidatePlayerID(player); err != nil {
		return EarnResult{}, err
	}

	base := l.rules.Earn.Calculate(activity, details)
	gross, eventName := l.rules.Calendar.Apply(base, activity, events.DayOf(l.Now()))
	if gross <= 0 {
		return EarnResult{}, nil
	}

	before := l.Balance(player)
	taxed := l.rules.Tax.Calculate(gross, before)

	// Invariant: net + tax == gross
	if taxed.Net+taxed.Tax != gross {
		panic(fmt.Sprintf("FATAL: tax split %d+%d != gross %d", taxed.Net, taxed.Tax, gross))
	}

	earnTx := l.mustPost(Posting{
		From:   SystemAccount,
		To:     player,
		Amount: gross,
		Payload: &EarnDetails{
			Activity: activity,
			Gross:    gross,
			Net:      taxed.Net,
			Tax:      taxed.Tax,
			Rate:     taxed.Rate,
			Event:    eventName,
			Base:     base,
		},
	})

	result := EarnResult{
		Earned:   taxed.Net,
		Gross:    gross,
		Tax:      taxed.Tax,
		Rate:     taxed.Rate,
		Event:    eventName,
		EarnTxID: earnTx.ID,
	}

	if taxed.Tax > 0 {
		taxTx := l.mustPost(Posting{
			From:   player,
			To:     TreasuryAccount,
			Amount: taxed.Tax,
			Payload: &TaxDetails{
				Activity: activity,
				Rate:     taxed.Rate,
				EarnTxID: earnTx.ID,
			},
		})
		result.TaxTxID = taxTx.ID
	}

	return result, nil
}

// Spend destroys amount from player's balance.
func (l *Ledger) Spend(player string, amount int64) (SpendResult, error) {
	return l.SpendFor(player, amount, &SpendDetails{Reason: SpendReasonPurchase})
}

// SpendFor destroys amount from player's balance with an explicit reason.
func (l *Ledger) SpendFor(player string, amount int64, details *SpendDetails) (SpendResult, error) {
	if err := ValidatePlayerID(player); err != nil {
		return SpendResult{}, err
	}
	if amount <= 0 {
		return SpendResult{}, fmt.Errorf("%w: spend must be positive, got %d", ErrInvalidAmount, amount)
	}
	if details == nil {
		details = &SpendDetails{Reason: SpendReasonPurchase}
	}

	tx, err := l.Post(Posting{
		From:    player,
		To:      SystemAccount,
		Amount:  amount,
		Payload: details,
	})
	if err != nil {
		return SpendResult{Balance: l.Balance(player)}, err
	}

	return SpendResult{Balance: l.Balance(player), TxID: tx.ID}, nil
}

// Transfer moves amount between two players. Transfers are never taxed.
func (l *Ledger) Transfer(from, to string, amount int64, memo string) (TransferResult, error) {
	if err := ValidatePlayerID(from); err != nil {
		return TransferResult{}, fmt.Errorf("sender: %w", err)
	}
	if err := ValidatePlayerID(to); err != nil {
		return TransferResult{}, fmt.Errorf("recipient: %w", err)
	}
	if amount <= 0 {
		return TransferResult{}, fmt.Errorf("%w: transfer must be positive, got %d", ErrInvalidAmount, amount)
	}

	tx, err := l.Post(Posting{
		From:    from,
		To:      to,
		Amount:  amount,
		Payload: &TransferDetails{Memo: memo},
	})
	if err != nil {
		return TransferResult{}, err
	}

	return TransferResult{
		FromBalance: l.Balance(from),
		ToBalance:   l.Balance(to),
		TxID:        tx.ID,
	}, nil
}

// mustPost is for postings whose preconditions the caller already checked.
func (l *Ledger) mustPost(p Posting) Transaction {
	tx, err := l.post(p, false)
	if err != nil {
		panic(fmt.Sprintf("FATAL: prevalidated posting rejected: %v", err))
	}
	return tx
}
