package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

type contextKey string

const WorkshopKey contextKey = "workshop"

// RequireEdit rejects requests without an edit token for the workshop named
// by the route variable keyVar. The token comes from an
// "Authorization: Bearer" header or a token query parameter.
func (s *Service) RequireEdit(keyVar string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authorization format"})
					return
				}
				token = parts[1]
			}
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing edit token"})
				return
			}

			key, err := s.ValidateToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			if key != mux.Vars(r)[keyVar] {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "token is for another workshop"})
				return
			}

			ctx := context.WithValue(r.Context(), WorkshopKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WorkshopFromContext(ctx context.Context) string {
	key, _ := ctx.Value(WorkshopKey).(string)
	return key
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
