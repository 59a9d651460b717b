package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxRole        contextKey = "actor_role"
	ctxAffiliateID contextKey = "affiliate_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// AffiliateIDFromContext returns the affiliate bound to the bearer token, or
// uuid.Nil for admin tokens.
func AffiliateIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxAffiliateID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithIdentity seeds the context the way Auth does; controller tests use it to
// skip token minting.
func WithIdentity(ctx context.Context, userID uuid.UUID, role string, affiliateID *uuid.UUID) context.Context {
	ctx = WithUserID(ctx, userID.String())
	ctx = context.WithValue(ctx, ctxRole, role)
	if affiliateID != nil {
		ctx = context.WithValue(ctx, ctxAffiliateID, *affiliateID)
	}
	return ctx
}
