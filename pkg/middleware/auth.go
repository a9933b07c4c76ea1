package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/shashiranjanraj/vastra/config"
	"github.com/shashiranjanraj/vastra/pkg/auth"
	"github.com/shashiranjanraj/vastra/pkg/response"
)

// ServiceKeyHeader carries the machine-to-machine credential.
const ServiceKeyHeader = "X-API-Key"

// Auth requires a valid user JWT and stores the actor in the context.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userFromBearer(r)
		if !ok {
			response.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

// ServiceOrAuth accepts either the service API key or a user JWT. The
// payment endpoints use it: checkout frontends call them with a user session,
// back-office systems with the machine credential.
func ServiceOrAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(ServiceKeyHeader); key != "" && serviceKeyValid(key) {
			ctx := auth.WithActor(r.Context(), auth.Actor{Service: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		actor, ok := userFromBearer(r)
		if !ok {
			response.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

// Staff requires the authenticated actor to be a staff user. Must run
// after Auth.
func Staff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromCtx(r.Context())
		if !ok || !actor.Staff {
			response.Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromBearer(r *http.Request) (auth.Actor, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return auth.Actor{}, false
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		return auth.Actor{}, false
	}

	return auth.Actor{UserID: claims.UserID, Staff: claims.Staff}, true
}

func serviceKeyValid(candidate string) bool {
	configured := config.ServiceAPIKey()
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(configured)) == 1
}
