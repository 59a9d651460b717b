package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/api/responses"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

// maxInboundRequestID bounds ids accepted from upstream proxies.
const maxInboundRequestID = 128

// RequestID reuses a sane inbound X-Request-Id or mints one, echoes it on the
// response and tags the request logger with it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r.Header.Get(responses.RequestIDHeader))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(responses.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxInboundRequestID {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}
