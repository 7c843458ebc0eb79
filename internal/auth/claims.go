package auth

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserID extracts the numeric user id from a JWT's claims. It checks the
// "id" claim first and falls back to "sub". ok is false when neither
// yields a number.
func UserID(token string) (int64, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	if id, ok := claimInt64(claims, "id"); ok {
		return id, true
	}
	return claimInt64(claims, "sub")
}

func claimInt64(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
