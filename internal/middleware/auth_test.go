package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseToken(t *testing.T) {
	token, err := SignToken("k", "cli", time.Minute)
	require.NoError(t, err)

	subject, err := ParseToken("k", token)
	require.NoError(t, err)
	assert.Equal(t, "cli", subject)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = SignToken("", "cli", time.Minute)
	assert.Error(t, err)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := SignToken("k", "cli", -time.Minute)
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: Issuer,
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":   expired,
		"issuer":    foreign,
		"no expiry": noExpiry,
		"garbage":   "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken("k", tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerAuth(t *testing.T) {
	var gotSubject string
	h := BearerAuth("k")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = SubjectFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := SignToken("k", "submitter", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"case insensitive scheme", "bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "submitter", gotSubject)
}

func TestBearerAuthDisabled(t *testing.T) {
	h := BearerAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, SubjectFrom(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
