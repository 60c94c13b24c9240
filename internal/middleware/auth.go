package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/payflow/internal/auth"
	"github.com/josh-kwaku/payflow/internal/handler"
	"github.com/josh-kwaku/payflow/internal/logging"
)

// OperatorAuth admits only requests bearing a valid operator token and
// records the operator on the request context and logger.
func OperatorAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r)
			if appErr != nil {
				handler.RespondAppError(w, appErr, nil)
				return
			}

			log := logging.FromContext(r.Context())
			claims, err := auth.ValidateOperatorToken(token, secret)
			if err != nil {
				log.Warn("operator token rejected", "path", r.URL.Path, "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithOperator(r.Context(), claims.Subject)
			ctx = logging.WithLogger(ctx, log.With("operator", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, *handler.AppError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", handler.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", handler.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
