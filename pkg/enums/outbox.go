package enums

// OutboxAggregateType names the root entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateCommission OutboxAggregateType = "commission"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
)

var validAggregateTypes = []OutboxAggregateType{AggregateCommission, AggregateWithdrawal}

func (a OutboxAggregateType) IsValid() bool { return isOneOf(validAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseOneOf(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType is published as the event_type attribute on Pub/Sub.
type OutboxEventType string

const (
	EventCommissionCreated       OutboxEventType = "commission_created"
	EventCommissionStatusChanged OutboxEventType = "commission_status_changed"
	EventCommissionCancelled     OutboxEventType = "commission_cancelled"
	EventWithdrawalRequested     OutboxEventType = "withdrawal_requested"
	EventWithdrawalStatusChanged OutboxEventType = "withdrawal_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCommissionCreated,
	EventCommissionStatusChanged,
	EventCommissionCancelled,
	EventWithdrawalRequested,
	EventWithdrawalStatusChanged,
}

func (e OutboxEventType) IsValid() bool { return isOneOf(validOutboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseOneOf(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason records why an event was parked in the dead letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
