package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/GolferGeek/sync-focus/internal/errors"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/repository"
)

const minPasswordLength = 6

type AuthService struct {
	accountRepo *repository.AccountRepository
	jwtSecret   []byte
	tokenTTL    time.Duration
	clock       clockwork.Clock
	logger      zerolog.Logger
}

func NewAuthService(
	accountRepo *repository.AccountRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *AuthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuthService{
		accountRepo: accountRepo,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		clock:       clock,
		logger:      logger.With().Str("component", "auth").Logger(),
	}
}

type AuthResult struct {
	Token string        `json:"token"`
	User  model.Account `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, *apperrors.APIError) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidEmail, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.BadRequest(apperrors.CodeWeakPassword, "password must be at least 6 characters")
	}

	_, err := s.accountRepo.GetByEmail(ctx, normalizedEmail)
	if err == nil {
		return nil, apperrors.Conflict(apperrors.CodeEmailExists, "email already registered", nil)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error().Err(err).Msg("failed to query account")
		return nil, apperrors.Internal("failed to query account")
	}

	passwordHashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to secure password")
	}

	now := s.clock.Now().UTC()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        normalizedEmail,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(passwordHashBytes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accountRepo.Create(ctx, &account); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperrors.Conflict(apperrors.CodeEmailExists, "email already registered", nil)
		}
		s.logger.Error().Err(err).Msg("failed to create account")
		return nil, apperrors.Internal("failed to create account")
	}

	token, apiErr := s.issueToken(account)
	if apiErr != nil {
		return nil, apiErr
	}

	s.logger.Info().Str("account_id", account.ID).Msg("account registered")
	account.PasswordHash = ""
	return &AuthResult{
		Token: token,
		User:  account,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, *apperrors.APIError) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" || password == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidCredentials, "email and password are required")
	}

	account, err := s.accountRepo.GetByEmail(ctx, normalizedEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query account")
		return nil, apperrors.Internal("failed to query account")
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	token, apiErr := s.issueToken(*account)
	if apiErr != nil {
		return nil, apiErr
	}

	account.PasswordHash = ""
	return &AuthResult{
		Token: token,
		User:  *account,
	}, nil
}

// Me returns the account behind a validated token subject.
func (s *AuthService) Me(ctx context.Context, accountID string) (*model.Account, *apperrors.APIError) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("account no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to query account")
	}
	account.PasswordHash = ""
	return account, nil
}

func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		return "", apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return "", apperrors.Unauthorized("invalid token subject")
	}

	return claims.Subject, nil
}

func (s *AuthService) issueToken(account model.Account) (string, *apperrors.APIError) {
	now := s.clock.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   account.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", apperrors.Internal("failed to sign token")
	}
	return signed, nil
}
