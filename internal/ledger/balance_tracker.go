package ledger

import (
	"fmt"
	"sort"
)

// Posting is a single movement of Spark. The payload determines the
// transaction type.
type Posting struct {
	From    string
	To      string
	Amount  int64
	Payload Payload
}

// Balance returns the balance for an account; unknown accounts read as 0.
// Never creates an entry.
func (l *Ledger) Balance(account string) int64 {
	return l.Balances[account]
}

// ValidateSufficient checks if an account can cover amount
func (l *Ledger) ValidateSufficient(account string, amount int64) error {
	have := l.Balance(account)
	if have < amount {
		return fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientFunds, have, amount)
	}
	return nil
}

// Post validates and applies a posting, appending one transaction.
// The sender must cover the amount unless it is SYSTEM (issuance).
func (l *Ledger) Post(p Posting) (Transaction, error) {
	return l.post(p, true)
}

func (l *Ledger) post(p Posting, checkFunds bool) (Transaction, error) {
	if p.Payload == nil {
		return Transaction{}, fmt.Errorf("posting has no payload")
	}
	if p.Amount < 0 {
		return Transaction{}, fmt.Errorf("%w: %d", ErrInvalidAmount, p.Amount)
	}
	if p.From == "" || p.To == "" {
		return Transaction{}, fmt.Errorf("%w: empty account id", ErrInvalidAccount)
	}
	if p.From == p.To {
		return Transaction{}, fmt.Errorf("%w: %s", ErrSelfTransfer, p.From)
	}
	if checkFunds && p.From != SystemAccount {
		if err := l.ValidateSufficient(p.From, p.Amount); err != nil {
			return Transaction{}, err
		}
	}

	l.applyPosting(p.From, p.To, p.Amount)

	tx := Transaction{
		ID:        l.nextTxID(),
		Seq:       int64(len(l.Transactions)) + 1,
		Timestamp: l.NowMillis(),
		From:      p.From,
		To:        p.To,
		Amount:    p.Amount,
	}
	tx.setPayload(p.Payload)

	l.Transactions = append(l.Transactions, tx)
	return tx, nil
}

// applyPosting moves funds. SYSTEM is never balance-tracked.
func (l *Ledger) applyPosting(from, to string, amount int64) {
	if from != SystemAccount {
		l.Balances[from] -= amount
	}
	if to != SystemAccount {
		l.Balances[to] += amount
	}
}

// Players returns every balance holder except the reserved accounts, sorted.
func (l *Ledger) Players() []string {
	players := make([]string, 0, len(l.Balances))
	for id := range l.Balances {
		if !IsReserved(id) {
			players = append(players, id)
		}
	}
	sort.Strings(players)
	return players
}

// TotalCirculating sums every tracked balance, TREASURY included.
func (l *Ledger) TotalCirculating() int64 {
	var total int64
	for _, b := range l.Balances {
		total += b
	}
	return total
}

// Snapshot returns a copy of all balances (for state hashing)
func (l *Ledger) Snapshot() map[string]int64 {
	snapshot := make(map[string]int64, len(l.Balances))
	for k, v := range l.Balances {
		snapshot[k] = v
	}
	return snapshot
}
