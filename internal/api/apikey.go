// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"crypto/subtle"
	"net/http"
)

// apiKeyHeader is where a caller presents its bearer token. Full
// authn/authz (sessions, roles, JWT/OIDC/LDAP) is an explicit
// Non-goal; this is a single shared-secret check, not a user model.
const apiKeyHeader = "X-Api-Key"

// checkAPIKey reports whether r carries the configured key, checked in
// constant time to avoid a timing side channel on key comparison. An
// empty configured key disables the check (useful for local dev).
func checkAPIKey(want string, r *http.Request) bool {
	if want == "" {
		return true
	}
	got := r.Header.Get(apiKeyHeader)
	if got == "" {
		got = r.URL.Query().Get("api_key")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireAPIKey wraps h with the constant-time key check, responding
// 401 on mismatch.
func (api *RestApi) requireAPIKey(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !checkAPIKey(api.APIKey, r) {
			handleError(apiKeyError{}, http.StatusUnauthorized, rw)
			return
		}
		h(rw, r)
	}
}

type apiKeyError struct{}

func (apiKeyError) Error() string { return "missing or invalid API key" }
