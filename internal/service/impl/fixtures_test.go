package impl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"uniauth/internal/config"
	"uniauth/internal/domain"
	"uniauth/internal/merge"
	"uniauth/internal/store"
	"uniauth/internal/store/storetest"
	"uniauth/internal/token"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() config.Config {
	return config.Config{
		AllowStandaloneAccounts: true,
		AllowSharedEmails:       true,
		MaxLinkedEmails:         20,
		RecursiveMerging:        true,
		FromEmail:               "uniauth@example.com",
		SSOTag:                  "cas",
		HandleRetries:           5,
		VerificationDays:        3,
		TokenSecret:             "test-secret",
	}
}

// plainHasher stores secrets with a prefix; good enough to tell passwords
// apart without paying for a KDF.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	return []byte("plain$" + secret), nil
}

func (h *plainHasher) Verify(blob []byte, secret string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	if len(blob) == 0 || blob[0] == '!' || secret == "" {
		return false
	}
	return bytes.Equal(blob, []byte("plain$"+secret))
}

func (h *plainHasher) Unusable() []byte { return []byte("!unusable") }

type stubSSO struct {
	externalID string
	attributes map[string]any
	err        error
	calls      int
}

func (s *stubSSO) VerifyTicket(ctx context.Context, ticket, serviceURL, serverURL string) (string, map[string]any, error) {
	s.calls++
	return s.externalID, s.attributes, s.err
}

type sentMail struct {
	to, subject, body, from string
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body, from string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body, from: from})
	return m.err
}

type fixture struct {
	st      *store.Store
	cfg     config.Config
	hasher  *plainHasher
	sso     *stubSSO
	mailer  *recordingMailer
	tokens  *token.Issuer
	emails  *EmailLinkServiceImpl
	account *AccountServiceImpl
	admin   *AdminServiceImpl
}

func newFixture(t *testing.T, tweak ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}
	st := storetest.Open(t)
	tokens, err := token.NewIssuer(token.Config{SigningKey: []byte(cfg.TokenSecret), Lifetime: cfg.VerificationTTL()})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	f := &fixture{
		st:     st,
		cfg:    cfg,
		hasher: &plainHasher{},
		sso:    &stubSSO{},
		mailer: &recordingMailer{},
		tokens: tokens,
	}
	f.emails = NewEmailLinkServiceImpl(st, f.hasher, tokens, f.mailer, cfg, discard)
	resolver := NewSSOResolver(st, f.sso, cfg.SSOTag, discard)
	f.account = NewAccountServiceImpl(st, f.hasher, f.emails, resolver, merge.NewEngine(st, nil, discard), cfg, discard)
	f.admin = NewAdminServiceImpl(st, cfg, discard)
	return f
}

func (f *fixture) identity(t *testing.T, h string, password string, verified ...string) (*domain.Identity, *domain.Profile) {
	t.Helper()
	ctx := context.Background()
	ident := &domain.Identity{Handle: h, IsActive: true}
	if password != "" {
		ident.Credential, _ = f.hasher.Hash(password)
	}
	if err := f.st.Identities().Create(ctx, ident); err != nil {
		t.Fatalf("create %s: %v", h, err)
	}
	p, err := f.st.Profiles().GetByIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("profile of %s: %v", h, err)
	}
	for _, a := range verified {
		if err := f.st.Emails().Create(ctx, &domain.LinkedEmail{ProfileID: p.ID, Address: a, IsVerified: true}); err != nil {
			t.Fatalf("email %s: %v", a, err)
		}
	}
	return ident, p
}

func (f *fixture) placeholder(t *testing.T) *domain.Identity {
	t.Helper()
	ident := &domain.Identity{IsActive: true}
	if err := f.st.Identities().CreatePlaceholder(context.Background(), ident); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}
	return ident
}

func (f *fixture) institution(t *testing.T) *domain.Institution {
	t.Helper()
	ctx := context.Background()
	inst, err := f.st.Institutions().GetBySlug(ctx, "test-uni")
	if errors.Is(err, domain.ErrNotFound) {
		inst = &domain.Institution{Name: "Test Uni", Slug: "test-uni", SSOServerURL: "https://sso.test-uni.edu/cas/"}
		err = f.st.Institutions().Create(ctx, inst)
	}
	if err != nil {
		t.Fatalf("institution: %v", err)
	}
	return inst
}

func (f *fixture) reload(t *testing.T, id domain.IdentityID) *domain.Identity {
	t.Helper()
	ident, err := f.st.Identities().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return ident
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.st.Identities().Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// tokenFrom extracts the token line of a verification mail sent without a
// link base.
func tokenFrom(t *testing.T, m sentMail) string {
	t.Helper()
	for _, line := range strings.Split(m.body, "\n") {
		if tok, ok := strings.CutPrefix(line, "token: "); ok {
			return tok
		}
	}
	t.Fatalf("no token in mail body %q", m.body)
	return ""
}

func hasCode(err error, code string) bool {
	var verrs domain.ValidationErrors
	return errors.As(err, &verrs) && verrs.Has(code)
}
