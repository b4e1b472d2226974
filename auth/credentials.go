// notes/auth/credentials.go

// Package auth registers and authenticates users against a store.UserStore,
// issues session tokens and guards HTTP routes with them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/store"
)

type Service struct {
	users              store.UserStore
	cost               int
	legacyNameIdentity bool
	logger             zerolog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

type ServiceOption func(*Service)

func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.cost = cost }
}

// WithLegacyNameIdentity makes SessionID return the user's full name, the
// identifier older note trees were stored under.
func WithLegacyNameIdentity(on bool) ServiceOption {
	return func(s *Service) { s.legacyNameIdentity = on }
}

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger.With().Str("component", "auth").Logger() }
}

func NewService(users store.UserStore, opts ...ServiceOption) *Service {
	s := &Service{
		users:  users,
		cost:   bcrypt.DefaultCost,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the form, checks the email is free and stores a new
// record with a bcrypt hash of password.
func (s *Service) Register(ctx context.Context, email, password, fullName, phone string) (*domain.User, error) {
	email = NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	phone = strings.TrimSpace(phone)

	if err := ValidateRegistration(email, password, phone); err != nil {
		return nil, err
	}

	existing, err := s.users.FindUsersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: find users: %v", domain.ErrRemoteUnavailable, err)
	}
	if len(existing) > 0 {
		return nil, domain.ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		PhoneNumber:  phone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: insert user: %v", domain.ErrRemoteUnavailable, err)
	}

	s.logger.Info().Str("user_id", u.ID).Msg("user registered")
	return u, nil
}

// Authenticate returns the first stored record for email whose hash matches
// password. An unknown email and a wrong password fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = NormalizeEmail(email)

	candidates, err := s.users.FindUsersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: find users: %v", domain.ErrRemoteUnavailable, err)
	}

	if len(candidates) == 0 {
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		s.logger.Debug().Msg("login for unknown email")
		return nil, domain.ErrInvalidCredentials
	}

	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].PasswordHash), []byte(password)) == nil {
			s.logger.Info().Str("user_id", candidates[i].ID).Msg("user authenticated")
			return &candidates[i], nil
		}
	}
	s.logger.Debug().Msg("login with wrong password")
	return nil, domain.ErrInvalidCredentials
}

// SessionID is the identifier a user's note tree is stored under.
func (s *Service) SessionID(u *domain.User) string {
	if s.legacyNameIdentity {
		return u.FullName
	}
	return u.ID
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lumi-timing-equalizer"), s.cost)
	})
	return s.dummyHash
}
