package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"go-token-auth/model"
	"go-token-auth/repository"
	"go-token-auth/token"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "go-token-auth-test"
	testAudience = "test-clients"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
	keyErr  error
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		testKey, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, keyErr)
	return testKey
}

func testSigner(t *testing.T) *token.RSASigner {
	t.Helper()
	signer, err := token.NewRSASigner(rsaKey(t), nil)
	require.NoError(t, err)
	return signer
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           24 * time.Hour,
		CheckAccessBlacklist: true,
		RevokeFamilyOnReuse:  true,
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- collaborator mocks ---

type mockCredentials struct{ mock.Mock }

func (m *mockCredentials) Validate(ctx context.Context, identifier, secret string) (*model.UserIdentity, error) {
	args := m.Called(identifier, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserIdentity), args.Error(1)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) FindByID(ctx context.Context, userID string) (*model.UserIdentity, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserIdentity), args.Error(1)
}

type mockClaims struct{ mock.Mock }

func (m *mockClaims) ClaimsFor(ctx context.Context, userID string) (map[string]any, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// --- fault injecting stores ---

var errStoreDown = errors.New("store unavailable")

type faultyStore struct {
	*repository.MemoryRefreshTokenStore
	createErr     error
	createDelay   time.Duration
	findErr       error
	listErr       error
	panicOnRevoke bool
}

func (f *faultyStore) Create(ctx context.Context, rec *model.RefreshTokenRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	time.Sleep(f.createDelay)
	return f.MemoryRefreshTokenStore.Create(ctx, rec)
}

func (f *faultyStore) FindByJTI(ctx context.Context, jti string) (*model.RefreshTokenRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.MemoryRefreshTokenStore.FindByJTI(ctx, jti)
}

func (f *faultyStore) FindByUserID(ctx context.Context, userID string, includeRevoked bool) ([]*model.RefreshTokenRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryRefreshTokenStore.FindByUserID(ctx, userID, includeRevoked)
}

func (f *faultyStore) Revoke(ctx context.Context, jti, reason string) error {
	if f.panicOnRevoke {
		panic("revoke exploded")
	}
	return f.MemoryRefreshTokenStore.Revoke(ctx, jti, reason)
}

type faultyBlacklist struct {
	*repository.MemoryBlacklist
	lookupErr error
	addErr    error
}

func (f *faultyBlacklist) Add(ctx context.Context, entry *model.BlacklistEntry) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.MemoryBlacklist.Add(ctx, entry)
}

func (f *faultyBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.MemoryBlacklist.IsBlacklisted(ctx, jti)
}

// --- fixture ---

type fixture struct {
	tokens    *TokenService
	auth      *AuthService
	store     *faultyStore
	blacklist *faultyBlacklist
	creds     *mockCredentials
	users     *mockDirectory
	claims    *mockClaims
	clock     *fakeClock
	hook      *logtest.Hook
	codec     *token.Codec
	signer    *token.RSASigner
}

func newFixture(t *testing.T, cfg TokenConfig) *fixture {
	t.Helper()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store:     &faultyStore{MemoryRefreshTokenStore: repository.NewMemoryRefreshTokenStore()},
		blacklist: &faultyBlacklist{MemoryBlacklist: repository.NewMemoryBlacklist()},
		creds:     new(mockCredentials),
		users:     new(mockDirectory),
		claims:    new(mockClaims),
		clock:     newFakeClock(),
		hook:      hook,
		codec:     token.NewCodec(testIssuer, testAudience),
		signer:    testSigner(t),
	}
	f.claims.On("ClaimsFor", mock.Anything).Return(map[string]any{model.ClaimRole: "user"}, nil).Maybe()

	f.tokens = NewTokenService(f.codec, f.signer, f.store, f.blacklist, f.claims, cfg, log)
	f.tokens.now = f.clock.Now
	f.auth = NewAuthService(f.tokens, f.creds, f.users, f.store, f.blacklist, DefaultMaxActiveTokens, log)
	f.auth.now = f.clock.Now
	return f
}

func (f *fixture) issue(t *testing.T, userID, deviceID string) *model.TokenPair {
	t.Helper()
	pair, err := f.tokens.IssueTokenPair(context.Background(), userID, model.DeviceFingerprint{DeviceID: deviceID}, map[string]any{model.ClaimRole: "user"})
	require.NoError(t, err)
	return pair
}

func (f *fixture) payload(t *testing.T, tokenString string) *model.Payload {
	t.Helper()
	raw, err := f.signer.Verify(tokenString)
	require.NoError(t, err)
	p, err := f.codec.DecodeClaims(raw)
	require.NoError(t, err)
	return p
}

func (f *fixture) activeCount(t *testing.T, userID string) int {
	t.Helper()
	records, err := f.store.FindByUserID(context.Background(), userID, false)
	require.NoError(t, err)
	n := 0
	for _, r := range records {
		if r.IsActive(f.clock.Now()) {
			n++
		}
	}
	return n
}

// hasEvent reports whether any captured log entry carries the given event field.
func hasEvent(hook *logtest.Hook, event string) bool {
	for _, e := range hook.AllEntries() {
		if e.Data["event"] == event {
			return true
		}
	}
	return false
}
