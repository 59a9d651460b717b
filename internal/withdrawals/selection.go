package withdrawals

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
)

// selection is the set of available commissions a withdrawal reserves.
type selection struct {
	ids      []uuid.UUID
	reserved int64
	// last is the final commission taken; excess is how far the running total
	// went past the requested amount because of it.
	last   *models.Commission
	excess int64
}

// shortfall is the part of amount the selected commissions do not cover.
func (s selection) shortfall(amount int64) int64 {
	if s.reserved >= amount {
		return 0
	}
	return amount - s.reserved
}

// selectCommissions walks candidates in their given order and takes whole
// commissions until the running total reaches amount.
func selectCommissions(candidates []models.Commission, amount int64) selection {
	var sel selection
	for i := range candidates {
		if sel.reserved >= amount {
			break
		}
		c := &candidates[i]
		sel.ids = append(sel.ids, c.ID)
		sel.reserved += c.Amount
		sel.last = c
	}
	if sel.reserved > amount {
		sel.excess = sel.reserved - amount
	}
	return sel
}
