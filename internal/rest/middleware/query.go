package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// NormalizeQuery trims query values and drops the ones left empty, so `?predicted=` reads the
// same as an absent parameter.
func NormalizeQuery() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			normalized := make(url.Values, len(q))
			for k, vs := range q {
				for _, v := range vs {
					if v = strings.TrimSpace(v); v != "" {
						normalized[k] = append(normalized[k], v)
					}
				}
			}
			r.URL.RawQuery = normalized.Encode()
			next.ServeHTTP(w, r)
		})
	}
}
