package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/core/domain"
	"github.com/clipsocial/social-api/internal/core/ports"
)

type stubIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
	findErr    error
	createErr  error
	updateErr  error
	updates    int
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{identities: make(map[string]*domain.Identity)}
}

func cloneIdentity(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

func (r *stubIdentityRepo) Create(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.identities {
		if existing.Email == identity.Email {
			return domain.ErrDuplicateEmail
		}
	}
	r.identities[identity.ID] = cloneIdentity(identity)
	return nil
}

func (r *stubIdentityRepo) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, i := range r.identities {
		if i.Email == email {
			return cloneIdentity(i), nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *stubIdentityRepo) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	i, ok := r.identities[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneIdentity(i), nil
}

func (r *stubIdentityRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	i, ok := r.identities[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	i.PasswordHash = hash
	r.updates++
	return nil
}

// stubHasher produces "v<version>:<n>:<secret>" records so tests can inspect
// what was stored and how many comparisons ran.
type stubHasher struct {
	mu       sync.Mutex
	version  int
	n        int
	verifies int
	// costs holds the version prefix of every record passed to Verify.
	costs []string
}

func (h *stubHasher) Hash(_ context.Context, secret string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	return fmt.Sprintf("v%d:%d:%s", h.version, h.n, secret), nil
}

func (h *stubHasher) Verify(ctx context.Context, secret, record string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h.verifies++
	parts := strings.SplitN(record, ":", 3)
	if len(parts) != 3 {
		return false, errors.New("malformed record")
	}
	h.costs = append(h.costs, parts[0])
	return parts[2] == secret, nil
}

func (h *stubHasher) NeedsRehash(record string) bool {
	return !strings.HasPrefix(record, fmt.Sprintf("v%d:", h.version))
}

func (h *stubHasher) DummyRecord() string {
	return fmt.Sprintf("v%d:0:dummy-secret", h.version)
}

func (h *stubHasher) verifiedCosts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.costs...)
}

func (h *stubHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type stubIssuer struct{}

func (stubIssuer) Issue(identityID string) (domain.Token, error) {
	return domain.Token{Value: "token-" + identityID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type stubThrottle struct {
	blocked  bool
	err      error
	failures map[string]int
	resets   int
}

func newStubThrottle() *stubThrottle {
	return &stubThrottle{failures: make(map[string]int)}
}

func (t *stubThrottle) Allow(context.Context, string) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	return !t.blocked, nil
}

func (t *stubThrottle) RecordFailure(_ context.Context, email string) error {
	t.failures[email]++
	return t.err
}

func (t *stubThrottle) Reset(context.Context, string) error {
	t.resets++
	return t.err
}

type stubRecorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *stubRecorder) Record(e domain.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *stubRecorder) types() []domain.AuthEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuthEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo     *stubIdentityRepo
	hasher   *stubHasher
	throttle *stubThrottle
	audit    *stubRecorder
	svc      *AuthService
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newStubIdentityRepo(),
		hasher:   &stubHasher{version: 1},
		throttle: newStubThrottle(),
		audit:    &stubRecorder{},
	}
	f.svc = NewAuthService(f.repo, f.hasher, stubIssuer{}, f.throttle, f.audit, zerolog.Nop())
	return f
}

var _ ports.AuthService = (*AuthService)(nil)

func TestAuthService_Register_Success(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Register(context.Background(), "  Alice@Example.com ", "Secure1!")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.Identity.ID == "" {
		t.Fatal("expected generated id")
	}
	if res.Identity.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", res.Identity.Email)
	}
	if res.Identity.PasswordHash == "Secure1!" {
		t.Fatal("expected password to be hashed")
	}
	if res.Token.Value != "token-"+res.Identity.ID {
		t.Fatalf("expected token for new identity, got %q", res.Token.Value)
	}

	stored, err := f.repo.FindByID(context.Background(), res.Identity.ID)
	if err != nil {
		t.Fatalf("identity not stored: %v", err)
	}
	if ok, _ := f.hasher.Verify(context.Background(), "Secure1!", stored.PasswordHash); !ok {
		t.Fatal("stored hash does not match password")
	}
	if got := f.audit.types(); len(got) != 1 || got[0] != domain.EventRegistered {
		t.Fatalf("unexpected audit events: %v", got)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newFixture()

	cases := []struct {
		email, password string
	}{
		{"", "Secure1!"},
		{"not-an-email", "Secure1!"},
		{"a@x.com", ""},
		{"a@x.com", "short"},
		{"a@x.com", strings.Repeat("p", 73)},
		{strings.Repeat("a", 250) + "@x.com", "Secure1!"},
	}
	for _, c := range cases {
		_, err := f.svc.Register(context.Background(), c.email, c.password)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Register(%q, %q): expected ValidationError, got %v", c.email, c.password, err)
		}
	}
	if len(f.repo.identities) != 0 {
		t.Fatal("expected nothing stored")
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.Register(context.Background(), "bob@example.com", "password1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := f.svc.Register(context.Background(), "BOB@example.com", "password2"); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Register_LostRaceIsDuplicate(t *testing.T) {
	f := newFixture()
	f.repo.createErr = domain.ErrDuplicateEmail

	if _, err := f.svc.Register(context.Background(), "bob@example.com", "password1"); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Register_StoreFailure(t *testing.T) {
	f := newFixture()
	f.repo.findErr = errors.New("connection refused")

	_, err := f.svc.Register(context.Background(), "bob@example.com", "password1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newFixture()

	reg, err := f.svc.Register(context.Background(), "carol@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	res, err := f.svc.Login(context.Background(), "Carol@Example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.IdentityID != reg.Identity.ID {
		t.Fatalf("expected identity %s, got %s", reg.Identity.ID, res.IdentityID)
	}
	if res.Token.Value == "" {
		t.Fatal("expected token, got empty")
	}
	if f.throttle.resets != 1 {
		t.Fatalf("expected throttle reset, got %d", f.throttle.resets)
	}
}

func TestAuthService_Login_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Register(context.Background(), "dave@example.com", "goodpass1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	before := f.hasher.verifyCount()
	_, wrongPassErr := f.svc.Login(context.Background(), "dave@example.com", "badpass11")
	afterWrong := f.hasher.verifyCount()
	_, unknownErr := f.svc.Login(context.Background(), "ghost@example.com", "badpass11")
	afterUnknown := f.hasher.verifyCount()

	if !errors.Is(wrongPassErr, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassErr)
	}
	if !errors.Is(unknownErr, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownErr)
	}
	if wrongPassErr.Error() != unknownErr.Error() {
		t.Fatalf("expected identical errors, got %q and %q", wrongPassErr, unknownErr)
	}
	if afterWrong-before != 1 || afterUnknown-afterWrong != 1 {
		t.Fatalf("expected exactly one comparison per attempt, got %d and %d", afterWrong-before, afterUnknown-afterWrong)
	}
	// both comparisons must run at the same work factor
	costs := f.hasher.verifiedCosts()
	if got := costs[len(costs)-2:]; got[0] != got[1] {
		t.Fatalf("expected equal cost for wrong password and unknown email, got %v", got)
	}
	if f.throttle.failures["dave@example.com"] != 1 || f.throttle.failures["ghost@example.com"] != 1 {
		t.Fatalf("expected one failure recorded per email, got %v", f.throttle.failures)
	}
}

func TestAuthService_Login_CorruptRecordIsInvalidCredentials(t *testing.T) {
	f := newFixture()
	f.repo.identities["id-1"] = &domain.Identity{ID: "id-1", Email: "eve@example.com", PasswordHash: "garbage"}

	if _, err := f.svc.Login(context.Background(), "eve@example.com", "whatever1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_Throttled(t *testing.T) {
	f := newFixture()
	f.throttle.blocked = true

	_, err := f.svc.Login(context.Background(), "frank@example.com", "password1")
	if !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if f.hasher.verifyCount() != 0 {
		t.Fatal("expected no hash comparison while throttled")
	}
}

func TestAuthService_Login_ThrottleFailureFailsOpen(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Register(context.Background(), "gina@example.com", "password1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f.throttle.err = errors.New("redis down")

	if _, err := f.svc.Login(context.Background(), "gina@example.com", "password1"); err != nil {
		t.Fatalf("expected login to proceed, got %v", err)
	}
}

func TestAuthService_Login_WithoutThrottle(t *testing.T) {
	repo := newStubIdentityRepo()
	svc := NewAuthService(repo, &stubHasher{version: 1}, stubIssuer{}, nil, nil, zerolog.Nop())

	if _, err := svc.Register(context.Background(), "hank@example.com", "password1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.Login(context.Background(), "hank@example.com", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "hank@example.com", "password1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestAuthService_Login_RehashesOutdatedRecord(t *testing.T) {
	f := newFixture()
	reg, err := f.svc.Register(context.Background(), "ivy@example.com", "password1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	f.hasher.version = 2
	if _, err := f.svc.Login(context.Background(), "ivy@example.com", "password1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, _ := f.repo.FindByID(context.Background(), reg.Identity.ID)
	if !strings.HasPrefix(stored.PasswordHash, "v2:") {
		t.Fatalf("expected upgraded record, got %q", stored.PasswordHash)
	}
	if f.repo.updates != 1 {
		t.Fatalf("expected one update, got %d", f.repo.updates)
	}

	if _, err := f.svc.Login(context.Background(), "ivy@example.com", "password1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if f.repo.updates != 1 {
		t.Fatalf("expected no further rehash, got %d updates", f.repo.updates)
	}
}

func TestAuthService_Login_RehashFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Register(context.Background(), "jack@example.com", "password1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f.hasher.version = 2
	f.repo.updateErr = errors.New("write conflict")

	if _, err := f.svc.Login(context.Background(), "jack@example.com", "password1"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
}

func TestAuthService_Login_StoreFailure(t *testing.T) {
	f := newFixture()
	f.repo.findErr = errors.New("i/o timeout")

	_, err := f.svc.Login(context.Background(), "kim@example.com", "password1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newFixture()
	reg, err := f.svc.Register(context.Background(), "lee@example.com", "password1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	id := reg.Identity.ID

	if err := f.svc.ChangePassword(context.Background(), id, "wrong-pass", "password2"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	var verr *domain.ValidationError
	if err := f.svc.ChangePassword(context.Background(), id, "password1", "short"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), id, "password1", "password2"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "lee@example.com", "password1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "lee@example.com", "password2"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), "missing", "password1", "password2"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestAuthService_Identity(t *testing.T) {
	f := newFixture()
	reg, err := f.svc.Register(context.Background(), "mia@example.com", "password1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := f.svc.Identity(context.Background(), reg.Identity.ID)
	if err != nil {
		t.Fatalf("identity lookup failed: %v", err)
	}
	if got.Email != "mia@example.com" {
		t.Fatalf("unexpected identity: %+v", got)
	}

	if _, err := f.svc.Identity(context.Background(), "missing"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	f.repo.findErr = errors.New("connection reset")
	if _, err := f.svc.Identity(context.Background(), reg.Identity.ID); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthService_ConcurrentRegistrationKeepsOneIdentity(t *testing.T) {
	f := newFixture()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), "race@example.com", "password1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrDuplicateEmail):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || len(f.repo.identities) != 1 {
		t.Fatalf("expected exactly one identity, got %d created and %d stored", created, len(f.repo.identities))
	}
}
