package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    Role   `json:"role"`
	Use     string `json:"use"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c Claims) Principal() Principal {
	return Principal{UserID: c.Subject, Role: c.Role}
}

// Tokens issues and validates HS256 tokens for one issuer.
type Tokens struct {
	Issuer     string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issue issues signed access and refresh tokens for p.
func (t Tokens) Issue(p Principal) (TokenPair, error) {
	return Issue(p, t.Issuer, t.Key, t.AccessTTL, t.RefreshTTL)
}

// ParseAccess validates an access token.
func (t Tokens) ParseAccess(token string) (Claims, error) {
	return parseUse(token, t.Key, t.Issuer, useAccess)
}

// ParseRefresh validates a refresh token.
func (t Tokens) ParseRefresh(token string) (Claims, error) {
	return parseUse(token, t.Key, t.Issuer, useRefresh)
}

// Issue issues signed access and refresh tokens.
func Issue(p Principal, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	accessToken, err := sign(p, useAccess, issuer, key, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(p, useRefresh, issuer, key, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func sign(p Principal, use, issuer, key string, now, exp time.Time) (string, error) {
	claims := Claims{
		Subject: p.UserID,
		Role:    p.Role,
		Use:     use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

func parseUse(tokenStr, key, issuer, use string) (Claims, error) {
	claims, err := Parse(tokenStr, key, issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Use != use {
		return Claims{}, errors.New("wrong token use")
	}
	return claims, nil
}
