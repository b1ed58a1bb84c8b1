// Package auth issues and verifies Vind session tokens and hashes passwords.
//
// A session token is an HS256 JWT valid for seven days. Besides the registered
// claims it carries the user's id, email and username so that handlers can
// attribute likes, comments and follows without a database round trip.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client signs up or logs in with email and password (or finishes
//     the GitHub OAuth callback when it is configured)
//  2. The server checks the bcrypt hash and issues a token
//  3. The token is returned in the JSON body and set as an HttpOnly cookie
//  4. On later requests RequireAuth or OptionalAuth reads the Authorization
//     header or the cookie, validates the token and stores an Identity in
//     the request context
//
// WHY JWT?
// A JWT is stateless. The server keeps no session table; everything a handler
// needs (user id, username, expiry) is inside the signed token, and the HMAC
// signature means nobody can change it without the secret. Logout therefore
// only clears the cookie. A stolen token stays valid until it expires.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"userId":"<id>","username":"alice","sub":"<id>","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, JWT_SECRET)
//
// Validation rejects any other signing method, so a token forged with
// "alg":"none" is never accepted.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL is how long an issued token stays valid.
	SessionTTL = 7 * 24 * time.Hour

	issuer = "vind"
)

// Identity is the authenticated principal encoded in a token.
type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

type claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Generate signs a session token for id that expires after SessionTTL.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, SessionTTL)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: identity has no user id")
	}
	now := s.now()

	c := claims{
		UserID:   id.UserID,
		Email:    id.Email,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the identity in it.
//
// Only HS256 tokens issued by this service with an expiry are accepted.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Identity{UserID: userID, Email: c.Email, Username: c.Username}, nil
}
