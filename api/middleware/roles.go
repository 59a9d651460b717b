package middleware

import (
	"net/http"

	"github.com/angelmondragon/affiliate-ledger/api/responses"
	pkgAuth "github.com/angelmondragon/affiliate-ledger/pkg/auth"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

func RequireRole(role pkgAuth.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != string(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
