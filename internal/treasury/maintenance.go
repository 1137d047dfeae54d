package treasury

import (
	"SparkLedger/internal/ledger"
	"fmt"
)

// MaintenanceResult describes one maintenance pass.
type MaintenanceResult struct {
	Charged  int64              `json:"charged"`
	Paid     []string           `json:"paid"`   // Structure IDs
	Missed   []string           `json:"missed"` // Structure IDs that missed but survive
	ToRemove []ledger.Structure `json:"to_remove"`
	Day      int64              `json:"day"`
	Skipped  bool               `json:"skipped,omitempty"`
}

// RegisterStructure records a structure subject to maintenance. SYSTEM may
// own structures; they are never charged.
func (t *Treasury) RegisterStructure(l *ledger.Ledger, owner, kind string) (ledger.Structure, error) {
	if owner != ledger.SystemAccount {
		if err := ledger.ValidatePlayerID(owner); err != nil {
			return ledger.Structure{}, err
		}
	}

	s := ledger.Structure{
		ID:      l.NextStructureID(),
		Owner:   owner,
		Kind:    kind,
		BuiltAt: l.NowMillis(),
	}
	l.Structures = append(l.Structures, s)
	return s, nil
}

// ChargeMaintenance bills each structure once. An owner that cannot pay
// accrues a missed payment; at MaxMissedPayments the structure is removed
// and returned in ToRemove. A successful payment clears the count.
func (t *Treasury) ChargeMaintenance(l *ledger.Ledger) MaintenanceResult {
	result := MaintenanceResult{
		Paid:     make([]string, 0),
		Missed:   make([]string, 0),
		ToRemove: make([]ledger.Structure, 0),
		Day:      l.Today(),
	}
	if t.cfg.MaintenanceCost <= 0 {
		return result
	}

	kept := l.Structures[:0]
	for _, s := range l.Structures {
		if s.Owner == ledger.SystemAccount {
			kept = append(kept, s)
			continue
		}

		if l.Balance(s.Owner) >= t.cfg.MaintenanceCost {
			if _, err := l.SpendFor(s.Owner, t.cfg.MaintenanceCost, &ledger.SpendDetails{
				Reason:      ledger.SpendReasonMaintenance,
				Item:        s.Kind,
				StructureID: s.ID,
			}); err != nil {
				panic(fmt.Sprintf("FATAL: maintenance rejected after funds check: %v", err))
			}
			s.MissedPayments = 0
			result.Charged += t.cfg.MaintenanceCost
			result.Paid = append(result.Paid, s.ID)
			kept = append(kept, s)
			continue
		}

		s.MissedPayments++
		if s.MissedPayments >= t.cfg.MaxMissedPayments {
			result.ToRemove = append(result.ToRemove, s)
			continue
		}
		result.Missed = append(result.Missed, s.ID)
		kept = append(kept, s)
	}
	l.Structures = kept

	return result
}

// ChargeDailyMaintenance runs ChargeMaintenance at most once per game day.
func (t *Treasury) ChargeDailyMaintenance(l *ledger.Ledger, day int64) MaintenanceResult {
	if l.LastMaintenanceDay != 0 && l.LastMaintenanceDay >= day {
		return MaintenanceResult{
			Paid:     make([]string, 0),
			Missed:   make([]string, 0),
			ToRemove: make([]ledger.Structure, 0),
			Day:      day,
			Skipped:  true,
		}
	}
	result := t.ChargeMaintenance(l)
	result.Day = day
	l.LastMaintenanceDay = day
	return result
}
