package server

import (
	"crypto/subtle"
	"net/http"
)

// authMiddleware guards the status endpoints. A request is accepted when it
// carries the configured API token (X-Api-Token header or token query
// parameter) or valid Basic credentials. When neither a token nor
// credentials are configured the endpoints are open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authConfigured() {
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.AuthToken != "" {
			token := r.Header.Get("X-Api-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		if s.cfg.Username != "" {
			user, pass, ok := r.BasicAuth()
			if ok &&
				subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) == 1 &&
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="linkarr"`)
		}

		RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func (s *Server) authConfigured() bool {
	return s.cfg.AuthToken != "" || s.cfg.Username != ""
}
