package enums

// ProgramType identifies which affiliate program an affiliate belongs to.
type ProgramType string

const (
	ProgramChatter    ProgramType = "chatter"
	ProgramGroupAdmin ProgramType = "group_admin"
	ProgramBlogger    ProgramType = "blogger"
	ProgramInfluencer ProgramType = "influencer"
)

var validProgramTypes = []ProgramType{ProgramChatter, ProgramGroupAdmin, ProgramBlogger, ProgramInfluencer}

func (p ProgramType) String() string { return string(p) }

func (p ProgramType) IsValid() bool { return isOneOf(validProgramTypes, p) }

func ParseProgramType(value string) (ProgramType, error) {
	return parseOneOf(validProgramTypes, value, "program type")
}

// CommissionType names what earned the commission.
type CommissionType string

const (
	CommissionClientReferral      CommissionType = "client_referral"
	CommissionRecruitment         CommissionType = "recruitment"
	CommissionProviderRecruitment CommissionType = "provider_recruitment"
	CommissionManualAdjustment    CommissionType = "manual_adjustment"
)

var validCommissionTypes = []CommissionType{
	CommissionClientReferral,
	CommissionRecruitment,
	CommissionProviderRecruitment,
	CommissionManualAdjustment,
}

func (t CommissionType) String() string { return string(t) }

func (t CommissionType) IsValid() bool { return isOneOf(validCommissionTypes, t) }

func ParseCommissionType(value string) (CommissionType, error) {
	return parseOneOf(validCommissionTypes, value, "commission type")
}

// CommissionStatus is the lifecycle position of a commission.
//
//	pending -> validated -> available -> paid
//	pending|validated|available -> cancelled
//	paid -> available (withdrawal rejected or failed)
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionValidated CommissionStatus = "validated"
	CommissionAvailable CommissionStatus = "available"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

var validCommissionStatuses = []CommissionStatus{
	CommissionPending,
	CommissionValidated,
	CommissionAvailable,
	CommissionPaid,
	CommissionCancelled,
}

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionPending:   {CommissionValidated, CommissionCancelled},
	CommissionValidated: {CommissionAvailable, CommissionCancelled},
	CommissionAvailable: {CommissionPaid, CommissionCancelled},
	CommissionPaid:      {CommissionAvailable},
}

func (s CommissionStatus) String() string { return string(s) }

func (s CommissionStatus) IsValid() bool { return isOneOf(validCommissionStatuses, s) }

// CanTransitionTo reports whether next is a legal successor of s.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	return isOneOf(commissionTransitions[s], next)
}

// Cancellable reports whether a commission in this status may be cancelled.
func (s CommissionStatus) Cancellable() bool {
	return s.CanTransitionTo(CommissionCancelled)
}

func ParseCommissionStatus(value string) (CommissionStatus, error) {
	return parseOneOf(validCommissionStatuses, value, "commission status")
}
