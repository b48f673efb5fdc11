package impl

import (
	"context"
	"errors"
	"testing"

	"uniauth/internal/config"
	"uniauth/internal/domain"
	"uniauth/internal/dto"
)

func TestSignupCreatesPlaceholderWithPendingEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ident, email, err := f.account.Signup(ctx, nil, "new@example.com", "pw")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if got := f.emails.classifier.Classify(ident.Handle); got != domain.Placeholder {
		t.Fatalf("expected placeholder, got %s (%s)", got, ident.Handle)
	}
	if !f.hasher.Verify(ident.Credential, "pw") {
		t.Fatalf("expected credential set")
	}
	if email.IsVerified || email.Address != "new@example.com" {
		t.Fatalf("expected pending email, got %+v", email)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(f.mailer.sent))
	}

	res, err := f.emails.Verify(ctx, email.ID, tokenFrom(t, f.mailer.sent[0]))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Identity.ID != ident.ID || res.Identity.Handle != "new@example.com" {
		t.Fatalf("expected signed up identity renamed to new@example.com, got %+v", res.Identity)
	}
}

func TestSignupReusesPendingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmp := f.placeholder(t)

	_, first, err := f.account.Signup(ctx, tmp, "new@example.com", "pw")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, second, err := f.account.Signup(ctx, tmp, "New@Example.com", "pw2")
	if err != nil {
		t.Fatalf("signup again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the pending row to be reused, got %s and %s", first.ID, second.ID)
	}
	p, _ := f.st.Profiles().GetByIdentity(ctx, tmp.ID)
	if n, _ := f.st.Emails().CountByProfile(ctx, p.ID); n != 1 {
		t.Fatalf("expected one pending row regardless of case, got %d", n)
	}
	if got := f.reload(t, tmp.ID); !f.hasher.Verify(got.Credential, "pw2") {
		t.Fatalf("expected latest password stored")
	}
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.AllowSharedEmails = false })
	ctx := context.Background()
	holder := &domain.Identity{Handle: "holder", PrimaryEmail: "taken@example.com", IsActive: true}
	if err := f.st.Identities().Create(ctx, holder); err != nil {
		t.Fatalf("create holder: %v", err)
	}
	f.identity(t, "bob", "secret", "linked@example.com")
	alice, _ := f.identity(t, "alice", "pw")

	tests := []struct {
		name     string
		current  *domain.Identity
		email    string
		password string
		want     error
	}{
		{"primary email taken", nil, "taken@example.com", "pw", domain.ErrEmailTaken},
		{"linked elsewhere", nil, "linked@example.com", "other", domain.ErrAlreadyLinked},
		{"password reused", nil, "linked@example.com", "secret", domain.ErrPasswordReused},
		{"empty password", nil, "fresh@example.com", "", domain.ErrEmptyPassword},
		{"malformed email", nil, "fresh", "pw", domain.ErrFormat},
		{"standard identity", alice, "fresh@example.com", "pw", domain.ErrNotTemporary},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := f.count(t)
			_, _, err := f.account.Signup(ctx, tc.current, tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if after := f.count(t); after != before {
				t.Fatalf("expected no identity created, got %d -> %d", before, after)
			}
		})
	}
}

func TestLinkToProfileMergesUnlinkedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.institution(t)
	alice, aliceProfile := f.identity(t, "alice@example.com", "pw", "alice@example.com")
	unlinked, _ := f.identity(t, "cas-test-uni-jdoe", "", "jdoe@test-uni.edu")

	res, err := f.account.LinkToProfile(ctx, unlinked, alice)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != unlinked.ID {
		t.Fatalf("expected unlinked identity deleted, got %v", res.Deleted)
	}
	owner, err := f.st.Accounts().OwnerOf(ctx, inst.ID, "jdoe")
	if err != nil || owner.ID != alice.ID {
		t.Fatalf("expected alice to own jdoe, got %+v, %v", owner, err)
	}
	verified, err := f.st.Emails().VerifiedAddresses(ctx, aliceProfile.ID)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(verified) != 2 {
		t.Fatalf("expected unlinked emails merged in, got %v", verified)
	}
	if _, err := f.st.Identities().GetByID(ctx, unlinked.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unlinked identity gone, got %v", err)
	}
}

func TestLinkToProfileRejectsWrongKinds(t *testing.T) {
	f := newFixture(t)
	f.institution(t)
	alice, _ := f.identity(t, "alice", "pw")
	unlinked, _ := f.identity(t, "cas-test-uni-jdoe", "")
	tmp := f.placeholder(t)
	ctx := context.Background()

	if _, err := f.account.LinkToProfile(ctx, alice, alice); !errors.Is(err, domain.ErrNotTemporary) {
		t.Fatalf("expected not temporary, got %v", err)
	}
	if _, err := f.account.LinkToProfile(ctx, unlinked, tmp); !errors.Is(err, domain.ErrNotVerified) {
		t.Fatalf("expected not verified, got %v", err)
	}
}

func TestLinkFromProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.institution(t)
	alice, _ := f.identity(t, "alice", "pw")
	f.sso.externalID = "jdoe"
	creds := dto.SSOCredentials{Institution: "test-uni", Ticket: "ST-1"}

	res, err := f.account.LinkFromProfile(ctx, alice, creds)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(res.Deleted) != 1 {
		t.Fatalf("expected the fresh unlinked identity merged away, got %v", res.Deleted)
	}
	owner, err := f.st.Accounts().OwnerOf(ctx, inst.ID, "jdoe")
	if err != nil || owner.ID != alice.ID {
		t.Fatalf("expected alice to own jdoe, got %+v, %v", owner, err)
	}
	if n := f.count(t); n != 1 {
		t.Fatalf("expected only alice left, got %d identities", n)
	}

	again, err := f.account.LinkFromProfile(ctx, alice, creds)
	if err != nil {
		t.Fatalf("link again: %v", err)
	}
	if len(again.Deleted) != 0 || again.Primary.ID != alice.ID {
		t.Fatalf("expected no-op on an account alice already owns, got %+v", again)
	}
}

func TestLinkFromProfileRejectedTicket(t *testing.T) {
	f := newFixture(t)
	f.institution(t)
	alice, _ := f.identity(t, "alice", "pw")

	_, err := f.account.LinkFromProfile(context.Background(), alice, dto.SSOCredentials{Institution: "test-uni", Ticket: "bad"})
	if !errors.Is(err, domain.ErrTicketRejected) {
		t.Fatalf("expected ticket rejected, got %v", err)
	}
}

func TestLinkFromProfileRequiresVerifiedIdentity(t *testing.T) {
	f := newFixture(t)
	tmp := f.placeholder(t)

	_, err := f.account.LinkFromProfile(context.Background(), tmp, dto.SSOCredentials{Institution: "test-uni"})
	if !errors.Is(err, domain.ErrNotVerified) {
		t.Fatalf("expected not verified, got %v", err)
	}
	if f.sso.calls != 0 {
		t.Fatalf("expected no ticket check, got %d", f.sso.calls)
	}
}

func TestSetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, _ := f.identity(t, "alice", "pw", "shared@example.com")
	f.identity(t, "bob", "bobs", "shared@example.com")

	if err := f.account.SetPassword(ctx, alice.ID, ""); !errors.Is(err, domain.ErrEmptyPassword) {
		t.Fatalf("expected empty password error, got %v", err)
	}
	if err := f.account.SetPassword(ctx, alice.ID, "bobs"); !errors.Is(err, domain.ErrPasswordReused) {
		t.Fatalf("expected password reused, got %v", err)
	}
	if err := f.account.SetPassword(ctx, alice.ID, "fresh"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if got := f.reload(t, alice.ID); !f.hasher.Verify(got.Credential, "fresh") {
		t.Fatalf("expected new credential stored")
	}
}
