// Package services – AuthService
//
// This file implements AuthService, the in-process identity provider:
// anonymous sign-in (an identity minted from nothing but a UUID), email and
// password accounts with bcrypt hashes, and signed bearer tokens carrying the
// user ID. Anonymous identities let polls attribute creators and voters
// without forcing registration; an anonymous user can later register and
// keep the same ID.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/repo"
)

// minPasswordLen is the shortest accepted registration password.
const minPasswordLen = 8

// AuthService issues identities and verifies credentials and tokens.
type AuthService struct {
	DB       *gorm.DB
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthService constructs an AuthService signing tokens with secret.
func NewAuthService(db *gorm.DB, secret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{DB: db, secret: []byte(secret), tokenTTL: tokenTTL}
}

// SignInAnonymously mints a fresh anonymous identity and a bearer token for
// it. The optional display name is stored as-is.
func (s *AuthService) SignInAnonymously(ctx context.Context, displayName string) (*domain.User, string, error) {
	u := &domain.User{
		ID:          uuid.NewString(),
		DisplayName: strings.TrimSpace(displayName),
		IsAnonymous: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Register creates a credentialed account. When upgradeID names an existing
// anonymous user, that identity is upgraded in place instead, preserving
// ownership of polls created before registration.
func (s *AuthService) Register(ctx context.Context, email, password, displayName, upgradeID string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", ErrInvalidCredentials
	}
	if len(password) < minPasswordLen {
		return nil, "", ErrWeakPassword
	}
	if _, err := repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	var u *domain.User
	if upgradeID != "" {
		existing, err := repo.GetUser(ctx, s.DB, upgradeID)
		if err == nil && existing.IsAnonymous {
			err = s.DB.WithContext(ctx).
				Model(&domain.User{}).
				Where("id = ?", existing.ID).
				Updates(map[string]any{
					"email":         email,
					"password_hash": string(hash),
					"is_anonymous":  false,
					"display_name":  firstNonEmpty(strings.TrimSpace(displayName), existing.DisplayName),
				}).Error
			if err != nil {
				return nil, "", err
			}
			u, err = repo.GetUser(ctx, s.DB, existing.ID)
			if err != nil {
				return nil, "", err
			}
		}
	}
	if u == nil {
		u = &domain.User{
			ID:           uuid.NewString(),
			Email:        email,
			DisplayName:  strings.TrimSpace(displayName),
			PasswordHash: string(hash),
			IsAnonymous:  false,
			CreatedAt:    time.Now().UTC(),
		}
		if err := repo.CreateUser(ctx, s.DB, u); err != nil {
			if errors.Is(err, repo.ErrEmailTaken) {
				return nil, "", ErrEmailTaken
			}
			return nil, "", err
		}
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies an email/password pair and returns the user and a fresh
// token. Unknown emails and wrong passwords are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken signs a bearer token for the user.
func (s *AuthService) IssueToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"anon": u.IsAnonymous,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken verifies a bearer token and returns the user ID it names.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
