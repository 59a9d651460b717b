package cron

import (
	"fmt"
)

// NewCommissionReleaseJob makes validated commissions past the release delay
// available for withdrawal.
func NewCommissionReleaseJob(params CommissionSweepJobParams) (Job, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return newCommissionSweepJob("commission-release", params, params.Ledger.ReleaseValidated)
}
