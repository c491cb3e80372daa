package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenAuth guards a handler with a shared token sent as
// "Authorization: Bearer <token>". An empty token lets every request through.
type tokenAuth struct {
	token string
}

func (a tokenAuth) authorize(r *http.Request) error {
	if a.token == "" {
		return nil
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (a tokenAuth) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.authorize(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
