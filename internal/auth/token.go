package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ms-ordering/internal/models"
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the access_token query parameter used by EventSource clients.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// SessionClaims are carried by the token handed to a customer device when it
// registers at a table.
type SessionClaims struct {
	OrganizationID string `json:"org"`
	BranchID       string `json:"branch"`
	TableID        string `json:"table"`
	CustomerID     string `json:"customer,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokens issues and verifies HS256 table-session tokens.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionTokens(secret string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the session. The session id is the subject.
func (t *SessionTokens) Issue(s *models.TableSession) (string, error) {
	now := t.now()
	claims := SessionClaims{
		OrganizationID: s.OrganizationID,
		BranchID:       s.BranchID,
		TableID:        s.TableID,
		CustomerID:     s.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates signature and expiry and returns the claims.
func (t *SessionTokens) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("session token has no subject")
	}
	return claims, nil
}

// Verify implements Verifier for customer devices.
func (t *SessionTokens) Verify(_ context.Context, raw string) (Identity, error) {
	claims, err := t.Parse(raw)
	if err != nil {
		return Identity{}, err
	}
	subject := claims.CustomerID
	if subject == "" {
		subject = "session:" + claims.Subject
	}
	return Identity{
		Subject:        subject,
		OrganizationID: claims.OrganizationID,
		BranchID:       claims.BranchID,
		CustomerID:     claims.CustomerID,
		TableID:        claims.TableID,
		SessionID:      claims.Subject,
	}, nil
}
