package authflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeClock is a manually advanced Clock for cooldown and TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUser struct {
	userID       string
	password     string
	secondFactor bool
	destination  string
}

// mockCredentialStore is a map-backed CredentialStore with injectable
// failures per operation.
type mockCredentialStore struct {
	mu    sync.Mutex
	users map[string]mockUser

	signInErr   error
	statusErr   error
	registerErr error
	resetErr    error
	signOutErr  error

	signInHook func()

	registerCalls int
	resetCalls    int
	signOutCalls  int

	lastRegistered  string
	lastDisplayName string
	lastReset       string
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{
		users: map[string]mockUser{
			"alice@example.com": {
				userID:      "u1",
				password:    "correct-horse-9",
				destination: "chat:alice",
			},
			"bob@example.com": {
				userID:       "u2",
				password:     "bob-password-77",
				secondFactor: true,
				destination:  "chat:bob",
			},
		},
	}
}

func (m *mockCredentialStore) SignIn(_ context.Context, identifier, secret string) (SignInResult, error) {
	if m.signInHook != nil {
		m.signInHook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signInErr != nil {
		return SignInResult{}, m.signInErr
	}
	user, ok := m.users[identifier]
	if !ok || user.password != secret {
		return SignInResult{}, ErrInvalidCredentials
	}
	return SignInResult{UserID: user.userID, CodeDestination: user.destination}, nil
}

func (m *mockCredentialStore) SecondFactorStatus(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return false, m.statusErr
	}
	for _, user := range m.users {
		if user.userID == userID {
			return user.secondFactor, nil
		}
	}
	return false, nil
}

func (m *mockCredentialStore) Register(_ context.Context, identifier, _, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registerCalls++
	if m.registerErr != nil {
		return m.registerErr
	}
	if _, exists := m.users[identifier]; exists {
		return ErrConflict
	}
	m.lastRegistered = identifier
	m.lastDisplayName = displayName
	return nil
}

func (m *mockCredentialStore) RequestPasswordReset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetCalls++
	if m.resetErr != nil {
		return m.resetErr
	}
	// Accepted regardless of account existence.
	m.lastReset = identifier
	return nil
}

func (m *mockCredentialStore) SignOut(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signOutCalls++
	return m.signOutErr
}

type sentCode struct {
	destination string
	code        string
}

// mockDelivery records dispatched codes and can simulate delivery failure.
type mockDelivery struct {
	mu      sync.Mutex
	sent    []sentCode
	sendErr error

	sendHook func()
}

func (d *mockDelivery) Send(_ context.Context, destination, code string) error {
	if d.sendHook != nil {
		d.sendHook()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, sentCode{destination: destination, code: code})
	return nil
}

func (d *mockDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *mockDelivery) last() sentCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return sentCode{}
	}
	return d.sent[len(d.sent)-1]
}

func flowTestConfig() Config {
	cfg := defaultConfig()
	cfg.Session.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.Issuer = "authflow-test"
	return cfg
}

func newFlowEngine(t *testing.T, cfg Config, users *mockCredentialStore, delivery *mockDelivery, clock Clock) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithCredentialStore(users).
		WithCodeDelivery(delivery).
		WithStorage(NewMemoryStore()).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// loginToSecondFactor drives bob (second factor enabled) to the challenge
// stage and returns the dispatched code.
func loginToSecondFactor(t *testing.T, engine *Engine, delivery *mockDelivery) string {
	t.Helper()

	result, err := engine.Login(context.Background(), "bob@example.com", "bob-password-77")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.SecondFactorRequired {
		t.Fatal("expected second factor to be required")
	}
	if engine.Stage() != StageSecondFactor {
		t.Fatalf("expected second-factor stage, got %s", engine.Stage())
	}

	code := delivery.last().code
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	return code
}
