package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Principal struct {
	Email string
	Role  Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Session struct {
	Token string `json:"token"`
	Role  Role   `json:"role"`
}

// Authorizer issues bearer tokens at login and resolves them back to a
// principal on protected routes.
type Authorizer interface {
	IssueToken(email string) (Session, error)
	Authorize(token string) (Principal, error)
}

// StaticAuthorizer treats the e-mail itself as the token. Whoever presents
// the configured admin e-mail is an admin. It is a placeholder, not a
// security boundary.
type StaticAuthorizer struct {
	adminEmail string
}

func NewStaticAuthorizer(adminEmail string) *StaticAuthorizer {
	return &StaticAuthorizer{adminEmail: adminEmail}
}

func (a *StaticAuthorizer) IssueToken(email string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, ErrUnauthorized
	}
	return Session{Token: email, Role: a.roleFor(email)}, nil
}

func (a *StaticAuthorizer) Authorize(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Email: token, Role: a.roleFor(token)}, nil
}

func (a *StaticAuthorizer) roleFor(email string) Role {
	if email == a.adminEmail {
		return RoleAdmin
	}
	return RoleUser
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthorizer signs HS256 tokens carrying the e-mail as subject and the
// role granted at login.
type JWTAuthorizer struct {
	adminEmail string
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewJWTAuthorizer(adminEmail, secret string, ttl time.Duration) *JWTAuthorizer {
	return &JWTAuthorizer{
		adminEmail: adminEmail,
		secret:     []byte(secret),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (a *JWTAuthorizer) IssueToken(email string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, ErrUnauthorized
	}

	role := RoleUser
	if email == a.adminEmail {
		role = RoleAdmin
	}

	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, Role: role}, nil
}

func (a *JWTAuthorizer) Authorize(token string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return Principal{Email: c.Subject, Role: c.Role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}
