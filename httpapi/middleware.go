package httpapi

import (
	"context"
	"net/http"
	"strings"

	identity "github.com/tarkov-database/identity-server"
)

type identityContextKey struct{}

// IdentityFromContext returns the validated access identity injected by
// [API.Guard].
func IdentityFromContext(ctx context.Context) (*identity.AccessIdentity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*identity.AccessIdentity)
	return id, ok
}

// Guard is bearer-token middleware: it validates the Authorization
// header against the engine and injects the resulting identity into the
// request context. Everything else is a 401.
func (a *API) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			a.writeError(w, identity.ErrTokenInvalid)
			return
		}

		id, err := a.engine.ValidateAccess(r.Context(), token)
		if err != nil {
			a.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}
