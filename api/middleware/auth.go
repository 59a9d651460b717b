package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/affiliate-ledger/api/responses"
	pkgAuth "github.com/angelmondragon/affiliate-ledger/pkg/auth"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.Role == pkgAuth.RoleAffiliate && claims.AffiliateID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "affiliate token without affiliate id"))
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, string(claims.Role), claims.AffiliateID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.AffiliateID != nil {
					ctx = logg.WithAffiliateID(ctx, claims.AffiliateID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
