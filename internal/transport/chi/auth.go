package chi

import (
	"net/http"
)

// exemptPaths are routes that bypass authentication.
var exemptPaths = map[string]struct{}{
	"/":                    {},
	"/health":              {},
	"/metrics":             {},
	"/kb/split-strategies": {},
}

// APIKeyMiddleware returns a middleware that validates the X-API-Key header.
// If apiKeys is empty, authentication is disabled (pass-through).
func APIKeyMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		// No configured keys means auth is disabled.
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing X-API-Key header")
				return
			}
			if _, ok := validKeys[key]; !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
