package enums

// WithdrawalStatus is the position of a withdrawal in its state machine.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

var validWithdrawalStatuses = []WithdrawalStatus{
	WithdrawalPending,
	WithdrawalApproved,
	WithdrawalProcessing,
	WithdrawalCompleted,
	WithdrawalRejected,
	WithdrawalFailed,
}

// failed -> completed is reachable only through a manual payment confirmation.
var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:    {WithdrawalApproved, WithdrawalRejected},
	WithdrawalApproved:   {WithdrawalProcessing, WithdrawalRejected},
	WithdrawalProcessing: {WithdrawalCompleted, WithdrawalFailed},
	WithdrawalFailed:     {WithdrawalCompleted},
}

func (s WithdrawalStatus) String() string { return string(s) }

func (s WithdrawalStatus) IsValid() bool { return isOneOf(validWithdrawalStatuses, s) }

func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	return isOneOf(withdrawalTransitions[s], next)
}

// Outstanding reports whether the withdrawal still holds the affiliate's lock.
func (s WithdrawalStatus) Outstanding() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalProcessing:
		return true
	}
	return false
}

func ParseWithdrawalStatus(value string) (WithdrawalStatus, error) {
	return parseOneOf(validWithdrawalStatuses, value, "withdrawal status")
}
