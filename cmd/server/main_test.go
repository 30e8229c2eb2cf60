package main

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"pizzatruck/backend/internal/config"
	"pizzatruck/backend/internal/domain"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", TxMaxRetries: -1})
	if err == nil {
		t.Fatalf("expected negative retry budget to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", TxMaxRetries: 3})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

type fakeUsers struct {
	users []domain.UserAccount
}

func (f *fakeUsers) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	return f.users, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, user domain.UserAccount) error {
	f.users = append(f.users, user)
	return nil
}

func TestBootstrapUsersSeedsEmptyTable(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "first-oven-on")
	t.Setenv("SEED_CASHIER_PASSWORD", "")
	t.Setenv("SEED_KITCHEN_PASSWORD", "")

	users := &fakeUsers{}
	if err := bootstrapUsers(context.Background(), users); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(users.users) != 1 || users.users[0].Role != domain.RoleAdmin {
		t.Fatalf("expected one admin account, got %+v", users.users)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(users.users[0].Password), []byte("first-oven-on")); err != nil {
		t.Fatalf("expected bcrypt hash of seed password: %v", err)
	}

	if err := bootstrapUsers(context.Background(), users); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if len(users.users) != 1 {
		t.Fatalf("expected non-empty table to be left alone, got %d users", len(users.users))
	}
}
