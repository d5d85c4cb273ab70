package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/neboloop/architect/internal/httputil"
	"github.com/neboloop/architect/internal/logging"
)

// Issuer is the iss claim of every API token
const Issuer = "architect"

// ErrInvalidToken is returned for malformed, expired or foreign tokens
var ErrInvalidToken = errors.New("invalid token")

// ContextKey is a type for context keys
type ContextKey string

// SubjectKey holds the token subject (who submitted the request)
const SubjectKey ContextKey = "subject"

// SignToken creates an HS256 token for subject that expires after ttl
func SignToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates signature, issuer and expiry and returns the subject
func ParseToken(secret, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != Issuer || claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// BearerAuth creates a chi middleware that requires a token signed with
// secret. An empty secret disables the check.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.Unauthorized(w, "invalid authorization header format")
				return
			}

			subject, err := ParseToken(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				logging.Warnf("[Auth] Rejected token from %s", r.RemoteAddr)
				httputil.Unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFrom returns the authenticated subject, or "" without auth
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}
