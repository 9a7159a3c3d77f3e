package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/logging"
)

// Store is the persistence the identity service needs.
type Store interface {
	ProfileByEmail(ctx context.Context, email string) (Profile, error)
	ProfileByID(ctx context.Context, id string) (Profile, error)
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
}

// Service resolves credentials to role-bearing principals.
type Service struct {
	store  Store
	tokens auth.Tokens
	logger *zap.Logger
	newID  func() string
	cost   int
}

// NewService creates an identity service.
func NewService(store Store, tokens auth.Tokens, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, logger: logger, newID: uuid.NewString, cost: bcrypt.DefaultCost}
}

// SignInResult is returned by a successful sign-in.
type SignInResult struct {
	Principal auth.Principal `json:"principal"`
	Profile   Profile        `json:"profile"`
	Tokens    auth.TokenPair `json:"tokens"`
}

// SignIn verifies credentials. When required is non-empty the profile's role
// must match it, otherwise ErrRoleMismatch is returned even though the
// credentials were valid.
func (s *Service) SignIn(ctx context.Context, email, password string, required auth.Role) (SignInResult, error) {
	log := logging.FromContext(ctx, s.logger).With(zap.String("operation", "SignIn"))

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return SignInResult{}, apperr.ErrInvalidCredentials
	}

	p, err := s.store.ProfileByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return SignInResult{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		log.Error("profile lookup failed", logging.Err(err)...)
		return SignInResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return SignInResult{}, apperr.ErrInvalidCredentials
	}
	if required != "" && p.Role != required {
		log.Info("sign-in role mismatch", zap.String("user_id", p.ID), zap.String("role", string(p.Role)), zap.String("required", string(required)))
		return SignInResult{}, apperr.ErrRoleMismatch
	}

	pair, err := s.tokens.Issue(p.Principal())
	if err != nil {
		log.Error("token issue failed", zap.Error(err))
		return SignInResult{}, apperr.Backend("issue tokens", err)
	}
	return SignInResult{Principal: p.Principal(), Profile: p, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new pair, re-reading the role so
// role changes take effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, apperr.ErrUnauthenticated
	}
	p, err := s.store.ProfileByID(ctx, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return auth.TokenPair{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return auth.TokenPair{}, err
	}
	pair, err := s.tokens.Issue(p.Principal())
	if err != nil {
		return auth.TokenPair{}, apperr.Backend("issue tokens", err)
	}
	return pair, nil
}

// RegisterInput describes a new profile.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	AvatarURL string
	Role      auth.Role
}

// Register creates a profile with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Profile, error) {
	vErr := &apperr.ValidationError{}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		vErr.Add("email", "must be a valid address")
	}
	if len(in.Password) < 8 {
		vErr.Add("password", "must be at least 8 characters")
	}
	if _, err := auth.ParseRole(string(in.Role)); err != nil {
		vErr.Add("role", "must be student, teacher or admin")
	}
	if err := vErr.OrNil(); err != nil {
		return Profile{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Profile{}, apperr.Backend("hash password", err)
	}
	p, err := s.store.CreateProfile(ctx, Profile{
		ID:           s.newID(),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		AvatarURL:    in.AvatarURL,
		Role:         in.Role,
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("register failed", logging.Err(err)...)
		return Profile{}, err
	}
	return p, nil
}

// Profile loads display data for a user.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	return s.store.ProfileByID(ctx, userID)
}
