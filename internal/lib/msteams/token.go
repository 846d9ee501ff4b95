package msteams

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LinkTTL is how long an identity link or unlink URL stays valid.
const LinkTTL = 10 * time.Minute

var (
	ErrInvalidLink   = errors.New("identity link is invalid")
	ErrExpiredLink   = errors.New("identity link has expired")
	ErrMissingSecret = errors.New("link signing secret is empty")
)

// LinkParams identify the Teams user an identity URL was issued to.
type LinkParams struct {
	IntegrationID  int64  `json:"integration_id"`
	OrganizationID int64  `json:"organization_id"`
	TeamsUserID    string `json:"teams_user_id"`
	TeamID         string `json:"team_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	// Where to post the confirmation card.
	ServiceURL     string `json:"service_url,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type linkClaims struct {
	LinkParams
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 link tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

func (s *Signer) Sign(params LinkParams) (string, error) {
	now := s.now()
	claims := linkClaims{
		LinkParams: params,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(LinkTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(token string) (*LinkParams, error) {
	claims := &linkClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredLink
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if claims.TeamsUserID == "" || claims.IntegrationID == 0 {
		return nil, ErrInvalidLink
	}
	return &claims.LinkParams, nil
}
