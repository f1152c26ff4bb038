// Package auth verifies bearer tokens and yields the caller's identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docutag/enricher/models"
)

// ErrUnauthorized is returned for missing, malformed, or invalid credentials
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the token claims the service reads. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// UserStore records callers the first time they are seen
type UserStore interface {
	EnsureUser(ctx context.Context, user models.User) error
}

// Config contains verifier configuration
type Config struct {
	Secret    string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"` // Required iss claim when set
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns default verifier settings. Secret must still be set.
func DefaultConfig() Config {
	return Config{
		CacheSize: 1024,
		CacheTTL:  5 * time.Minute,
	}
}

// Verifier authenticates Authorization headers
type Verifier struct {
	secret []byte
	issuer string
	users  UserStore
	cache  *expirable.LRU[string, *Claims]
	now    func() time.Time
}

// NewVerifier creates a Verifier. users may be nil when callers need not be recorded.
func NewVerifier(config Config, users UserStore) (*Verifier, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}

	return &Verifier{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
		users:  users,
		cache:  expirable.NewLRU[string, *Claims](config.CacheSize, nil, config.CacheTTL),
		now:    time.Now,
	}, nil
}

// Authenticate verifies an "Authorization: Bearer <token>" header value and
// returns the caller. Unknown callers are recorded in the user store only on
// cache misses, so repeated requests with one token cost a single write.
func (v *Verifier) Authenticate(ctx context.Context, header string) (*models.User, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, ErrUnauthorized
	}

	if claims, hit := v.cache.Get(token); hit {
		// Cache entries outlive short tokens
		if claims.ExpiresAt == nil || claims.ExpiresAt.After(v.now()) {
			return userFromClaims(claims), nil
		}
		v.cache.Remove(token)
		return nil, ErrUnauthorized
	}

	claims, err := v.parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user := userFromClaims(claims)
	if v.users != nil {
		if err := v.users.EnsureUser(ctx, *user); err != nil {
			return nil, fmt.Errorf("failed to record user: %w", err)
		}
	}
	v.cache.Add(token, claims)
	return user, nil
}

func (v *Verifier) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Sign issues an HS256 token for user that expires after ttl
func Sign(secret, issuer string, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func userFromClaims(c *Claims) *models.User {
	return &models.User{ID: c.Subject, Email: c.Email}
}
