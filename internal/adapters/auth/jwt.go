// Package auth resolves the caller of a request from an HMAC-signed JWT.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const CookieName = "session-token"

// Claims carries the LMS identity: sub is the user id, name the display name.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type JWTProvider struct {
	secret []byte
	issuer string
}

var _ core.IdentityProvider = (*JWTProvider)(nil)

func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer}
}

// tokenFrom looks at the Authorization header, then the token query
// parameter (browsers cannot set headers on websocket upgrades), then the cookie.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (p *JWTProvider) Authenticate(r *http.Request) (*domain.User, error) {
	raw := tokenFrom(r)
	if raw == "" {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "missing token")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, errors.Wrapf(domain.ErrUnauthenticated, "invalid token: %v", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "token without subject")
	}
	u, err := domain.NewUser(domain.UserID(claims.Subject), claims.Name)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrUnauthenticated, "token identity: %v", err)
	}
	return u, nil
}

// Issue signs a token for uid; used by the seed tooling and tests.
func (p *JWTProvider) Issue(uid domain.UserID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(uid),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	return s, errors.Wrap(err, "sign token")
}
