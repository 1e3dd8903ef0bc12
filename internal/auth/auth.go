// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingKey   = errors.New("jwt secret is not configured")
)

// JWTClaims is the token payload: the subject is the user ID.
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is who a request acts as once its token has been verified.
type Principal struct {
	UserID          string `json:"userID"`
	Role            string `json:"role"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

func (p Principal) IsAdmin() bool {
	return p.IsAuthenticated && p.Role == RoleAdmin
}

// Verifier issues and checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret, issuer string, ttl time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for userID with role. Operators use it through the CLI;
// in production tokens come from the identity provider with the same claims.
func (v *Verifier) Issue(userID, role string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("issue token: empty subject")
	}
	if role != RoleAdmin && role != RoleUser {
		return "", fmt.Errorf("issue token: unknown role %q", role)
	}
	now := v.now()
	claims := &JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse verifies a token and turns it into a Principal.
func (v *Verifier) Parse(tokenString string) (Principal, error) {
	claims := &JWTClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{UserID: claims.Subject, Role: role, IsAuthenticated: true}, nil
}
