package treasury

import (
	"SparkLedger/internal/ledger"
	fpmath "SparkLedger/internal/math"
)

// UBIResult describes one distribution.
type UBIResult struct {
	Distributed int64    `json:"distributed"`
	PerPlayer   int64    `json:"per_player"`
	Recipients  []string `json:"recipients"`
	Day         int64    `json:"day"`
	Skipped     bool     `json:"skipped,omitempty"` // Already distributed on Day
}

// EligiblePlayers returns every balance holder except the reserved accounts,
// sorted by ID. Zero and negative balances are included.
func (t *Treasury) EligiblePlayers(l *ledger.Ledger) []string {
	return l.Players()
}

// DistributeUBI pays min(BaseUBI, treasury/n) to each eligible player in
// order, stopping when the treasury can no longer cover a full payout.
// The treasury never goes negative.
func (t *Treasury) DistributeUBI(l *ledger.Ledger, eligible []string) UBIResult {
	return t.distribute(l, eligible, l.Today())
}

func (t *Treasury) distribute(l *ledger.Ledger, eligible []string, day int64) UBIResult {
	result := UBIResult{Recipients: make([]string, 0), Day: day}

	if len(eligible) == 0 {
		return result
	}

	perPlayer := fpmath.Min(t.cfg.BaseUBI, l.Balance(ledger.TreasuryAccount)/int64(len(eligible)))
	if perPlayer < 1 {
		return result
	}
	result.PerPlayer = perPlayer

	for _, player := range eligible {
		if ledger.ValidatePlayerID(player) != nil {
			continue
		}
		if l.Balance(ledger.TreasuryAccount) < perPlayer {
			break
		}
		if _, err := l.Post(ledger.Posting{
			From:    ledger.TreasuryAccount,
			To:      player,
			Amount:  perPlayer,
			Payload: &ledger.UBIDetails{PerPlayer: perPlayer, Day: day},
		}); err != nil {
			break
		}
		result.Distributed += perPlayer
		result.Recipients = append(result.Recipients, player)
	}

	return result
}

// DistributeDailyUBI distributes at most once per game day. The day is only
// consumed once something was actually paid out.
func (t *Treasury) DistributeDailyUBI(l *ledger.Ledger, day int64, eligible []string) UBIResult {
	if l.LastUBIDay != 0 && l.LastUBIDay >= day {
		return UBIResult{Recipients: make([]string, 0), Day: day, Skipped: true}
	}

	result := t.distribute(l, eligible, day)
	if result.Distributed > 0 {
		l.LastUBIDay = day
	}
	return result
}
