package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"uniauth/internal/config"
	"uniauth/internal/domain"
	"uniauth/internal/dto"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite:"+filepath.Join(t.TempDir(), "uniauth.db"))
	t.Setenv("UNIAUTH_TOKEN_SECRET", "test-secret")
	t.Setenv("LOG_LEVEL", "error")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

func runWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func seedIdentity(t *testing.T, h string) {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	st, closeDB, err := openStore(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer closeDB()
	if err := st.Identities().Create(context.Background(), &domain.Identity{Handle: h, IsActive: true}); err != nil {
		t.Fatalf("create %s: %v", h, err)
	}
}

func TestUsage(t *testing.T) {
	out, err := runCmd(t)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	for _, name := range commandOrder {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in usage, got %q", name, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCmd(t, "frobnicate"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestArgumentCountChecked(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "add-institution", "Test Uni"); err == nil {
		t.Fatalf("expected usage error")
	}
}

func TestInstitutionLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := runCmd(t, "add-institution", "Test Uni", "https://sso.test-uni.edu/cas/")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var res dto.InstitutionResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Outcome != dto.InstitutionCreated || res.Slug != "test-uni" {
		t.Fatalf("expected created test-uni, got %+v", res)
	}

	if _, err := runCmd(t, "add-institution", "Test Uni", "https://sso.test-uni.edu/cas/"); !errors.Is(err, domain.ErrAlreadyPresent) {
		t.Fatalf("expected already present, got %v", err)
	}

	if _, err := runCmd(t, "remove-institution", "test-uni"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := runCmd(t, "remove-institution", "test-uni"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepOnce(t *testing.T) {
	setupEnv(t)

	out, err := runCmd(t, "sweep", "--days", "3")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	var res dto.SweepResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Deleted != 0 {
		t.Fatalf("expected nothing deleted on an empty db, got %d", res.Deleted)
	}
}

func TestMergeUnknownHandle(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "merge", "alice", "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddEmailAndSetPassword(t *testing.T) {
	setupEnv(t)
	seedIdentity(t, "alice")

	out, err := runCmd(t, "add-email", "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("add email: %v", err)
	}
	var email domain.LinkedEmail
	if err := json.Unmarshal([]byte(out), &email); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if email.Address != "alice@example.com" || email.IsVerified {
		t.Fatalf("expected pending alice@example.com, got %+v", email)
	}
	if !strings.Contains(out, `"state": "pending"`) {
		t.Fatalf("expected pending state in %q", out)
	}

	if _, err := runCmd(t, "verify-email", email.ID.String(), "bogus"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := runCmd(t, "verify-email", "not-a-uuid", "bogus"); !errors.Is(err, domain.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}

	out, err = runWithInput(t, "s3cret\n", "set-password", "alice")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if !strings.Contains(out, `"displayId": "alice"`) {
		t.Fatalf("expected display id in %q", out)
	}
	if _, err := runWithInput(t, "", "set-password", "alice"); !errors.Is(err, domain.ErrEmptyPassword) {
		t.Fatalf("expected empty password error, got %v", err)
	}
}
