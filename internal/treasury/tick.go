package treasury

import (
	"SparkLedger/internal/ledger"
)

// TickReport describes one periodic economy pass.
type TickReport struct {
	Day             int64             `json:"day"`
	Finalized       []ledger.Auction  `json:"finalized"`
	ExpiredListings []string          `json:"expired_listings"`
	WealthTax       WealthTaxResult   `json:"wealth_tax"`
	UBI             UBIResult         `json:"ubi"`
	Maintenance     MaintenanceResult `json:"maintenance"`
}

// Tick runs the periodic economy in order: finalize auctions, expire
// listings, wealth tax, daily UBI, daily maintenance. Wealth tax runs before
// UBI so collected tax is redistributed the same day. Wealth tax, UBI and
// maintenance are each applied at most once per day.
func (t *Treasury) Tick(l *ledger.Ledger, day int64) TickReport {
	report := TickReport{Day: day}

	if t.market != nil {
		report.Finalized = t.market.FinalizeAuctions(l)
		report.ExpiredListings = t.market.ExpireListings(l, 0)
	}

	// Maintenance is the last step to mark the day
	firstOfDay := l.LastMaintenanceDay == 0 || l.LastMaintenanceDay < day
	if firstOfDay {
		report.WealthTax = t.ApplyWealthTax(l)
	} else {
		report.WealthTax = WealthTaxResult{Players: make([]string, 0)}
	}

	report.UBI = t.DistributeDailyUBI(l, day, t.EligiblePlayers(l))
	report.Maintenance = t.ChargeDailyMaintenance(l, day)

	return report
}
