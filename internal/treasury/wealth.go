package treasury

import (
	"SparkLedger/internal/ledger"
	fpmath "SparkLedger/internal/math"
)

// WealthTaxResult describes one wealth-tax pass.
type WealthTaxResult struct {
	TotalCollected  int64    `json:"total_collected"`
	PlayersAffected int      `json:"players_affected"`
	Players         []string `json:"players"`
}

// ApplyWealthTax taxes the excess above the threshold for every player,
// floored, into TREASURY. Players whose tax floors to 0 are not touched.
func (t *Treasury) ApplyWealthTax(l *ledger.Ledger) WealthTaxResult {
	result := WealthTaxResult{Players: make([]string, 0)}

	for _, player := range l.Players() {
		before := l.Balance(player)
		if before <= t.cfg.WealthThreshold {
			continue
		}

		due := fpmath.MulBps(before-t.cfg.WealthThreshold, t.cfg.WealthRate, fpmath.RoundDown)
		if due <= 0 {
			continue
		}

		if _, err := l.Post(ledger.Posting{
			From:   player,
			To:     ledger.TreasuryAccount,
			Amount: due,
			Payload: &ledger.WealthTaxDetails{
				BalanceBefore: before,
				BalanceAfter:  before - due,
				Threshold:     t.cfg.WealthThreshold,
				Rate:          t.cfg.WealthRate,
			},
		}); err != nil {
			continue
		}

		result.TotalCollected += due
		result.PlayersAffected++
		result.Players = append(result.Players, player)
	}

	return result
}
