package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role scopes what a bearer may do.
type Role string

const (
	RoleAffiliate Role = "affiliate"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleAffiliate || r == RoleAdmin
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   Role
	// AffiliateID is required for affiliate tokens and ignored for admins.
	AffiliateID *uuid.UUID
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID      uuid.UUID  `json:"user_id"`
	Role        Role       `json:"role"`
	AffiliateID *uuid.UUID `json:"affiliate_id,omitempty"`
	jwt.RegisteredClaims
}
