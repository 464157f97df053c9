// Package identity verifies bearer tokens and carries the verified student
// id through a request context. Tokens are HS256 JWTs whose subject is the
// student id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abhisek/ascend/internal/apperr"
)

// ErrNoSecret is returned when a Verifier is built without a signing key.
var ErrNoSecret = errors.New("identity: jwt secret is empty")

// Claims are the token claims. Subject is the student id.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier issues and verifies student tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier signing with secret. An empty issuer
// disables the issuer check.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for studentID valid for ttl.
func (v *Verifier) Issue(studentID string, ttl time.Duration) (string, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return "", fmt.Errorf("issue token: empty student id")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   studentID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks the signature, expiry and issuer of tokenString and returns
// the student id. Failures are Unauthorized errors.
func (v *Verifier) Verify(tokenString string) (string, error) {
	const op = "verify token"
	if tokenString == "" {
		return "", apperr.Unauthorized(op)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", apperr.New(apperr.KindUnauthorized, "unauthorized", op, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", apperr.New(apperr.KindUnauthorized, "unauthorized", op, errors.New("invalid token"))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.New(apperr.KindUnauthorized, "unauthorized", op, errors.New("token has no subject"))
	}
	return claims.Subject, nil
}

type ctxKey struct{}

// WithStudent returns ctx carrying a verified student id.
func WithStudent(ctx context.Context, studentID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, studentID)
}

// StudentFrom returns the verified student id carried by ctx.
func StudentFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Require returns studentID, or an Unauthorized error when it is empty.
func Require(op, studentID string) (string, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return "", apperr.Unauthorized(op)
	}
	return studentID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
