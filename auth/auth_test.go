package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docutag/enricher/models"
)

const testSecret = "test-secret-with-enough-bytes-0123456789"

type recordingUsers struct {
	seen []models.User
	err  error
}

func (r *recordingUsers) EnsureUser(_ context.Context, u models.User) error {
	r.seen = append(r.seen, u)
	return r.err
}

func newTestVerifier(t *testing.T, users UserStore) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "enricher"}, users)
	require.NoError(t, err)
	return v
}

func TestAuthenticateValidToken(t *testing.T) {
	users := &recordingUsers{}
	v := newTestVerifier(t, users)

	token, err := Sign(testSecret, "enricher", models.User{ID: "user-1", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)

	user, err := v.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "a@example.com", user.Email)

	// Second call is served from the cache
	_, err = v.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Len(t, users.seen, 1)
}

func TestAuthenticateRejects(t *testing.T) {
	v := newTestVerifier(t, nil)

	wrongSecret, err := Sign("another-secret-with-enough-bytes-98765", "enricher", models.User{ID: "u"}, time.Hour)
	require.NoError(t, err)
	expired, err := Sign(testSecret, "enricher", models.User{ID: "u"}, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Sign(testSecret, "someone-else", models.User{ID: "u"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := Sign(testSecret, "enricher", models.User{}, time.Hour)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Issuer: "enricher", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "empty header", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "bearer without token", header: "Bearer "},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + wrongSecret},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer},
		{name: "no subject", header: "Bearer " + noSubject},
		{name: "other algorithm", header: "Bearer " + hs512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), tt.header)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestAuthenticateCachedTokenExpires(t *testing.T) {
	v := newTestVerifier(t, nil)
	token, err := Sign(testSecret, "enricher", models.User{ID: "u"}, time.Minute)
	require.NoError(t, err)

	_, err = v.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = v.Authenticate(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateUserStoreFailure(t *testing.T) {
	v := newTestVerifier(t, &recordingUsers{err: errors.New("db down")})
	token, err := Sign(testSecret, "enricher", models.User{ID: "u"}, time.Hour)
	require.NoError(t, err)

	_, err = v.Authenticate(context.Background(), "Bearer "+token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(Config{}, nil)
	assert.Error(t, err)
}
