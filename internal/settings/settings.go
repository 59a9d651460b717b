package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
)

// Ledger is the configuration snapshot passed into every ledger operation. A
// value is never mutated after Current returns it.
type Ledger struct {
	HoldPeriodDays          int    `json:"holdPeriodDays"`
	ReleaseDelayHours       int    `json:"releaseDelayHours"`
	MinimumWithdrawalAmount int64  `json:"minimumWithdrawalAmount"`
	RecruitmentWindowMonths int    `json:"recruitmentWindowMonths"`
	ReservationMode         string `json:"reservationMode"`
	Currency                string `json:"currency"`

	// CommissionAmounts is the default amount per commission type.
	CommissionAmounts map[enums.CommissionType]int64 `json:"commissionAmounts"`
	// ProgramOverrides replaces CommissionAmounts for a single program.
	ProgramOverrides map[enums.ProgramType]map[enums.CommissionType]int64 `json:"programOverrides,omitempty"`
	// EstimatedProcessing is the human readable delay per payment method.
	EstimatedProcessing map[enums.PaymentMethod]string `json:"estimatedProcessing"`
}

const defaultEstimatedProcessing = "3-5 business days"

// Defaults builds the snapshot used when the config store has no document.
func Defaults(cfg config.LedgerConfig) Ledger {
	return Ledger{
		HoldPeriodDays:          cfg.HoldPeriodDays,
		ReleaseDelayHours:       cfg.ReleaseDelayHours,
		MinimumWithdrawalAmount: cfg.MinimumWithdrawalAmount,
		RecruitmentWindowMonths: cfg.RecruitmentWindowMonths,
		ReservationMode:         strings.ToLower(cfg.ReservationMode),
		Currency:                strings.ToUpper(cfg.Currency),
		CommissionAmounts: map[enums.CommissionType]int64{
			enums.CommissionClientReferral:      cfg.ClientReferralAmount,
			enums.CommissionRecruitment:         cfg.RecruitmentAmount,
			enums.CommissionProviderRecruitment: cfg.ProviderRecruitAmount,
		},
		EstimatedProcessing: map[enums.PaymentMethod]string{
			enums.PaymentMethodBankTransfer: "3-5 business days",
			enums.PaymentMethodMobileMoney:  "1-2 business days",
			enums.PaymentMethodPayPal:       "1-2 business days",
			enums.PaymentMethodWise:         "1-3 business days",
		},
	}
}

func (l Ledger) HoldPeriod() time.Duration {
	return time.Duration(l.HoldPeriodDays) * 24 * time.Hour
}

func (l Ledger) ReleaseDelay() time.Duration {
	return time.Duration(l.ReleaseDelayHours) * time.Hour
}

// RecruitmentWindowEnd returns when a window opened at from stops earning.
func (l Ledger) RecruitmentWindowEnd(from time.Time) time.Time {
	return from.AddDate(0, l.RecruitmentWindowMonths, 0)
}

// AmountFor resolves the commission amount for a program, preferring the
// program override.
func (l Ledger) AmountFor(program enums.ProgramType, commissionType enums.CommissionType) (int64, bool) {
	if overrides, ok := l.ProgramOverrides[program]; ok {
		if amount, ok := overrides[commissionType]; ok {
			return amount, true
		}
	}
	amount, ok := l.CommissionAmounts[commissionType]
	return amount, ok
}

func (l Ledger) EstimatedProcessingFor(method enums.PaymentMethod) string {
	if est := strings.TrimSpace(l.EstimatedProcessing[method]); est != "" {
		return est
	}
	return defaultEstimatedProcessing
}

// SplitReservations reports whether the last reserved commission is split so
// that exactly the requested amount is locked.
func (l Ledger) SplitReservations() bool {
	return l.ReservationMode == config.ReservationModeSplit
}

func (l Ledger) Validate() error {
	switch l.ReservationMode {
	case config.ReservationModeOvershoot, config.ReservationModeSplit:
	default:
		return fmt.Errorf("unknown reservation mode %q", l.ReservationMode)
	}
	if l.HoldPeriodDays < 0 || l.ReleaseDelayHours < 0 {
		return fmt.Errorf("hold period and release delay must not be negative")
	}
	if l.MinimumWithdrawalAmount <= 0 {
		return fmt.Errorf("minimum withdrawal amount must be positive")
	}
	if l.RecruitmentWindowMonths <= 0 {
		return fmt.Errorf("recruitment window must be positive")
	}
	if len(l.Currency) != 3 {
		return fmt.Errorf("currency must be an ISO 4217 code")
	}
	for t, amount := range l.CommissionAmounts {
		if amount <= 0 {
			return fmt.Errorf("commission amount for %s must be positive", t)
		}
	}
	for program, overrides := range l.ProgramOverrides {
		for t, amount := range overrides {
			if amount <= 0 {
				return fmt.Errorf("override for %s/%s must be positive", program, t)
			}
		}
	}
	return nil
}

// document is the config-store shape. Scalars are pointers so an explicit
// zero overrides the default while an absent key keeps it.
type document struct {
	HoldPeriodDays          *int    `json:"holdPeriodDays"`
	ReleaseDelayHours       *int    `json:"releaseDelayHours"`
	MinimumWithdrawalAmount *int64  `json:"minimumWithdrawalAmount"`
	RecruitmentWindowMonths *int    `json:"recruitmentWindowMonths"`
	ReservationMode         *string `json:"reservationMode"`
	Currency                *string `json:"currency"`

	CommissionAmounts   map[enums.CommissionType]int64                      `json:"commissionAmounts"`
	ProgramOverrides    map[enums.ProgramType]map[enums.CommissionType]int64 `json:"programOverrides"`
	EstimatedProcessing map[enums.PaymentMethod]string                       `json:"estimatedProcessing"`
}

// merge overlays the fields present in doc onto l. The result still has to
// pass Validate.
func (l Ledger) merge(doc document) Ledger {
	out := l
	if doc.HoldPeriodDays != nil {
		out.HoldPeriodDays = *doc.HoldPeriodDays
	}
	if doc.ReleaseDelayHours != nil {
		out.ReleaseDelayHours = *doc.ReleaseDelayHours
	}
	if doc.MinimumWithdrawalAmount != nil {
		out.MinimumWithdrawalAmount = *doc.MinimumWithdrawalAmount
	}
	if doc.RecruitmentWindowMonths != nil {
		out.RecruitmentWindowMonths = *doc.RecruitmentWindowMonths
	}
	if doc.ReservationMode != nil {
		out.ReservationMode = strings.ToLower(strings.TrimSpace(*doc.ReservationMode))
	}
	if doc.Currency != nil {
		out.Currency = strings.ToUpper(strings.TrimSpace(*doc.Currency))
	}

	out.CommissionAmounts = make(map[enums.CommissionType]int64, len(l.CommissionAmounts))
	for k, v := range l.CommissionAmounts {
		out.CommissionAmounts[k] = v
	}
	for k, v := range doc.CommissionAmounts {
		out.CommissionAmounts[k] = v
	}

	out.EstimatedProcessing = make(map[enums.PaymentMethod]string, len(l.EstimatedProcessing))
	for k, v := range l.EstimatedProcessing {
		out.EstimatedProcessing[k] = v
	}
	for k, v := range doc.EstimatedProcessing {
		out.EstimatedProcessing[k] = v
	}

	if len(doc.ProgramOverrides) > 0 {
		out.ProgramOverrides = doc.ProgramOverrides
	}
	return out
}
