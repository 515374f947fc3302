// Package auth verifies the session tokens handed out after the identity
// provider login. A token is a snapshot of who the user was at login time:
// their ID, display name and the role IDs they held.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

type Claims struct {
	Sub     string   `json:"sub"`
	Name    string   `json:"name"`
	Avatar  string   `json:"avatar,omitempty"`
	RoleIDs []string `json:"roles"`
	JTI     string   `json:"jti"`
	Exp     int64    `json:"exp"`
}

// UserID returns Sub as a user ID. Parse only accepts tokens where this
// succeeds.
func (c Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Sub, 10, 64)
	return id
}

// Identity is what the login flow knows about a user.
type Identity struct {
	UserID  int64
	Name    string
	Avatar  string
	RoleIDs []string
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type Signer struct {
	secret []byte
	maxAge time.Duration
	clock  quartz.Clock
}

func NewSigner(secret []byte, maxAge time.Duration, clock quartz.Clock) *Signer {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Signer{secret: secret, maxAge: maxAge, clock: clock}
}

// Issue signs a session for id that expires after the signer's max age.
func (s *Signer) Issue(id Identity) (string, Claims, error) {
	if id.UserID <= 0 || id.Name == "" {
		return "", Claims{}, fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	roles := id.RoleIDs
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		Sub:     strconv.FormatInt(id.UserID, 10),
		Name:    id.Name,
		Avatar:  id.Avatar,
		RoleIDs: roles,
		JTI:     uuid.NewString(),
		Exp:     s.clock.Now().Add(s.maxAge).Unix(),
	}
	token, err := IssueToken(s.secret, claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

func (s *Signer) Parse(token string) (Claims, error) {
	return ParseToken(s.secret, token, s.clock.Now())
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

// ParseToken checks the signature and expiry of token as of now.
func ParseToken(secret []byte, token string, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.Name == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if id, err := strconv.ParseInt(claims.Sub, 10, 64); err != nil || id <= 0 {
		return Claims{}, ErrInvalidToken
	}
	if now.Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
