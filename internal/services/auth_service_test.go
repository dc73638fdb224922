package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khaled-alabsi/voting/internal/repo"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(newServiceDB(t), "test-secret", time.Hour)
}

func TestAuthService_SignInAnonymously(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	u, token, err := svc.SignInAnonymously(ctx, "  Sam ")
	if err != nil {
		t.Fatalf("SignInAnonymously: %v", err)
	}
	if !u.IsAnonymous || u.Email != "" || u.DisplayName != "Sam" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if token == "" {
		t.Fatalf("no token issued")
	}

	sub, err := svc.ValidateToken(token)
	if err != nil || sub != u.ID {
		t.Fatalf("ValidateToken = %q, %v; want %q", sub, err, u.ID)
	}
}

func TestAuthService_Register(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "  ", "longenough", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("blank email: got %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@b.com", "short", "", ""); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password: got %v", err)
	}

	u, token, err := svc.Register(ctx, " Sam@Example.COM ", "correct horse", "Sam", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "sam@example.com" || u.IsAnonymous || u.PasswordHash == "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if token == "" {
		t.Fatalf("no token issued")
	}

	if _, _, err := svc.Register(ctx, "sam@example.com", "another pass", "", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("reused email: got %v", err)
	}
}

func TestAuthService_Register_UpgradesAnonymousInPlace(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	anon, _, err := svc.SignInAnonymously(ctx, "Visitor")
	if err != nil {
		t.Fatalf("anonymous: %v", err)
	}

	u, _, err := svc.Register(ctx, "sam@example.com", "correct horse", "", anon.ID)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	// Same identity: polls created while anonymous stay owned.
	if u.ID != anon.ID {
		t.Fatalf("upgrade minted a new identity: %q vs %q", u.ID, anon.ID)
	}
	if u.IsAnonymous || u.Email != "sam@example.com" {
		t.Fatalf("upgrade incomplete: %+v", u)
	}
	// Blank display name keeps the stored one.
	if u.DisplayName != "Visitor" {
		t.Fatalf("display name lost: %+v", u)
	}

	// An upgrade id naming a credentialed account is ignored; a fresh user is
	// minted instead of hijacking the account.
	u2, _, err := svc.Register(ctx, "other@example.com", "correct horse", "", u.ID)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if u2.ID == u.ID {
		t.Fatalf("credentialed account overwritten")
	}
}

func TestAuthService_Login(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "sam@example.com", "correct horse", "Sam", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	u, token, err := svc.Login(ctx, "SAM@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Email != "sam@example.com" || token == "" {
		t.Fatalf("unexpected login result: %+v, %q", u, token)
	}

	// Unknown email and wrong password fail identically.
	_, _, errUnknown := svc.Login(ctx, "nobody@example.com", "correct horse")
	_, _, errWrong := svc.Login(ctx, "sam@example.com", "wrong pass")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", errUnknown, errWrong)
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	u, token, err := svc.SignInAnonymously(ctx, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v", err)
	}

	// A token signed with a different secret is rejected.
	other := NewAuthService(svc.DB, "other-secret", time.Hour)
	forged, err := other.IssueToken(u)
	if err != nil {
		t.Fatalf("issue with other secret: %v", err)
	}
	if _, err := svc.ValidateToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("cross-secret token accepted: %v", err)
	}

	// An expired token is rejected.
	brief := NewAuthService(svc.DB, "test-secret", time.Hour)
	brief.tokenTTL = -time.Minute
	stale, err := brief.IssueToken(u)
	if err != nil {
		t.Fatalf("issue stale: %v", err)
	}
	if _, err := svc.ValidateToken(stale); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	sub, err := svc.ValidateToken(token)
	if err != nil || sub != u.ID {
		t.Fatalf("valid token = %q, %v", sub, err)
	}

	// Round-trip sanity against the repository.
	if _, err := repo.GetUser(ctx, svc.DB, sub); err != nil {
		t.Fatalf("subject not resolvable: %v", err)
	}
}
