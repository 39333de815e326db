package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiresAt turns a lifetime in seconds into an absolute instant. When the
// server reports no lifetime the token's own exp claim is used, if it is a
// JWT that carries one. Otherwise the credential counts as already expired.
func expiresAt(now time.Time, seconds int64, token string) time.Time {
	if seconds > 0 {
		return now.Add(time.Duration(seconds) * time.Second)
	}
	if exp, ok := claimExpiry(token); ok {
		return exp
	}
	return now
}

// claimExpiry reads the exp claim without verifying the signature; the
// client has no key and only uses it for scheduling refreshes.
func claimExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
