package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/renderinc/forumsync/internal/forum"
)

// Claims are the identity fields read from the provider's assertion
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// DecodeAssertion reads the claims of an identity assertion without
// verifying its signature; the forum API verifies it on exchange
func DecodeAssertion(assertion string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(assertion), claims); err != nil {
		return nil, fmt.Errorf("decode assertion: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("decode assertion: missing subject")
	}
	return claims, nil
}

// Exchanger trades identity claims for a forum credential
type Exchanger interface {
	GoogleLogin(ctx context.Context, req forum.GoogleLoginRequest) (*forum.LoginResponse, error)
}

// Exchange decodes assertion, trades it for a forum credential and logs
// in. The session is left untouched unless the remote reports success
// and returns a token
func (s *Store) Exchange(ctx context.Context, ex Exchanger, assertion string) (Identity, error) {
	claims, err := DecodeAssertion(assertion)
	if err != nil {
		return Identity{}, err
	}

	resp, err := ex.GoogleLogin(ctx, forum.GoogleLoginRequest{
		Email:    claims.Email,
		Name:     claims.Name,
		GoogleID: claims.Subject,
		Picture:  claims.Picture,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("exchange assertion: %w", err)
	}

	if !resp.Success || resp.Token == "" {
		s.logger.Warn("Login exchange refused", slog.String("message", resp.Message))
		if resp.Message != "" {
			return Identity{}, fmt.Errorf("%w: %s", ErrLoginFailed, resp.Message)
		}
		return Identity{}, ErrLoginFailed
	}

	identity := Identity{
		ID:      resp.User.ID,
		Name:    resp.User.Name,
		Email:   resp.User.Email,
		Picture: claims.Picture,
	}
	s.Login(identity, resp.Token)
	return identity, nil
}
