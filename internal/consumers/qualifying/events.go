package qualifying

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

// EventType is the event_type attribute set by the producing services.
type EventType string

const (
	EventCallCompleted           EventType = "call.completed"
	EventRecruitRegistered       EventType = "recruit.registered"
	EventRecruitThresholdReached EventType = "recruit.threshold_reached"
)

// CallCompleted is published by telephony once a paid call ends. Either
// affiliate reference may be absent.
type CallCompleted struct {
	EventID             string     `json:"eventId"`
	CallID              string     `json:"callId"`
	ClientID            uuid.UUID  `json:"clientId"`
	ProviderID          uuid.UUID  `json:"providerId"`
	ReferrerAffiliateID *uuid.UUID `json:"referrerAffiliateId,omitempty"`
	ProviderRecruiterID *uuid.UUID `json:"providerRecruiterId,omitempty"`
	Currency            string     `json:"currency"`
	CapturedAmount      int64      `json:"capturedAmount"`
}

func (e CallCompleted) validate() error {
	if strings.TrimSpace(e.CallID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "callId is required")
	}
	if e.ProviderRecruiterID != nil && e.ProviderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "providerId is required with providerRecruiterId")
	}
	return nil
}

type RecruitRegistered struct {
	EventID     string            `json:"eventId"`
	RecruiterID uuid.UUID         `json:"recruiterId"`
	RecruitID   uuid.UUID         `json:"recruitId"`
	RecruitKind enums.RecruitKind `json:"recruitKind"`
}

func (e RecruitRegistered) validate() error {
	if e.RecruiterID == uuid.Nil || e.RecruitID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recruiterId and recruitId are required")
	}
	if !e.RecruitKind.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid recruitKind %q", e.RecruitKind)
	}
	return nil
}

type RecruitThresholdReached struct {
	EventID     string    `json:"eventId"`
	RecruiterID uuid.UUID `json:"recruiterId"`
	RecruitID   uuid.UUID `json:"recruitId"`
}

func (e RecruitThresholdReached) validate() error {
	if e.RecruiterID == uuid.Nil || e.RecruitID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recruiterId and recruitId are required")
	}
	return nil
}
