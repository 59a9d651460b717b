package enums

// AffiliateStatus mirrors the account state owned by the registration flow.
type AffiliateStatus string

const (
	AffiliateActive    AffiliateStatus = "active"
	AffiliateSuspended AffiliateStatus = "suspended"
	AffiliateBlocked   AffiliateStatus = "blocked"
	AffiliateBanned    AffiliateStatus = "banned"
)

var validAffiliateStatuses = []AffiliateStatus{AffiliateActive, AffiliateSuspended, AffiliateBlocked, AffiliateBanned}

func (s AffiliateStatus) IsValid() bool { return isOneOf(validAffiliateStatuses, s) }

func (s AffiliateStatus) IsActive() bool { return s == AffiliateActive }

func ParseAffiliateStatus(value string) (AffiliateStatus, error) {
	return parseOneOf(validAffiliateStatuses, value, "affiliate status")
}

// RecruitKind distinguishes a recruited affiliate from a recruited provider.
type RecruitKind string

const (
	RecruitPeer     RecruitKind = "peer"
	RecruitProvider RecruitKind = "provider"
)

var validRecruitKinds = []RecruitKind{RecruitPeer, RecruitProvider}

func (k RecruitKind) IsValid() bool { return isOneOf(validRecruitKinds, k) }

func ParseRecruitKind(value string) (RecruitKind, error) {
	return parseOneOf(validRecruitKinds, value, "recruit kind")
}

// CommissionType returns the commission a threshold on this kind of recruit earns.
func (k RecruitKind) CommissionType() CommissionType {
	if k == RecruitProvider {
		return CommissionProviderRecruitment
	}
	return CommissionRecruitment
}
