package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/mlready/internal/logging"
)

// APIKeyHeader carries the client key.
const APIKeyHeader = "X-API-Key"

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIKeyAuth rejects requests whose X-API-Key matches none of keys. An empty
// key list disables the check.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			valid = append(valid, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			switch {
			case key == "":
				deny(w, r, http.StatusUnauthorized, authError{"missing API key", "AUTH001"})
			case !matchKey([]byte(key), valid):
				deny(w, r, http.StatusForbidden, authError{"invalid API key", "AUTH002"})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, status int, body authError) {
	logging.FromContext(r.Context()).Warn("auth rejected",
		"path", r.URL.Path,
		"method", r.Method,
		"code", body.Code,
	)
	render.Status(r, status)
	render.JSON(w, r, body)
}

// matchKey compares against every key so timing does not reveal which matched.
func matchKey(key []byte, valid [][]byte) bool {
	match := 0
	for _, v := range valid {
		match |= subtle.ConstantTimeCompare(key, v)
	}
	return match == 1
}
