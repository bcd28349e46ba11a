package user

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/user/repo"
)

// memStore is an in-memory Store used by the package tests.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]*entity.User
	createErr error
	privErr   error
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[int64]*entity.User)}
}

func (m *memStore) Create(_ context.Context, u *entity.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return 0, userrepo.ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byID[u.ID] = &cp
	return u.ID, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SetPrivileges(_ context.Context, id int64, p entity.Privileges) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.privErr != nil {
		return m.privErr
	}
	u, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsStaff, u.IsLibrarian, u.IsSuperuser = p.IsStaff, p.IsLibrarian, p.IsSuperuser
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	return nil
}

func newTestService() (*UserService, *memStore) {
	store := newMemStore()
	return NewUserService(store, BcryptHasher{Cost: bcrypt.MinCost}), store
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Reader@EXAMPLE.com ": "Reader@example.com",
		"a@B.Org":               "a@b.org",
		"no-at-sign":            "no-at-sign",
		"   ":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEmail(in), "input %q", in)
	}
}

func TestCreateUserNormalizesAndHashes(t *testing.T) {
	svc, store := newTestService()

	u, err := svc.CreateUser(context.Background(), " Test@EXAMPLE.com", "pass123", Extra{Name: "Tester"})
	require.NoError(t, err)

	assert.Equal(t, "Test@example.com", u.Email)
	assert.Equal(t, "Tester", u.Name)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsStaff)
	assert.False(t, u.IsLibrarian)
	assert.False(t, u.IsSuperuser)
	assert.NotEqual(t, "pass123", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.byID[u.ID].PasswordHash), []byte("pass123")))
}

func TestCreateUserRequiresEmail(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), "  ", "pass123", Extra{})
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "dup@example.com", "pass123", Extra{})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "dup@EXAMPLE.COM", "other", Extra{})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateUserInactive(t *testing.T) {
	svc, _ := newTestService()
	inactive := false

	u, err := svc.CreateUser(context.Background(), "off@example.com", "pass123", Extra{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, u.IsActive)
}

func TestCreateUserWithoutPasswordCannotLogIn(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "nopw@example.com", "", Extra{})
	require.NoError(t, err)
	assert.True(t, len(u.PasswordHash) > 1 && u.PasswordHash[0] == '!')

	_, err = svc.Authenticate(ctx, "nopw@example.com", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "nopw@example.com", u.PasswordHash)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestCreateSuperuserEscalates(t *testing.T) {
	svc, store := newTestService()

	u, err := svc.CreateSuperuser(context.Background(), "admin@example.com", "pass123")
	require.NoError(t, err)
	assert.True(t, u.IsSuperuser)
	assert.True(t, u.IsStaff)

	stored := store.byID[u.ID]
	assert.True(t, stored.IsSuperuser)
	assert.True(t, stored.IsStaff)
}

func TestCreateSuperuserEscalationFailure(t *testing.T) {
	svc, store := newTestService()
	store.privErr = errors.New("db down")

	_, err := svc.CreateSuperuser(context.Background(), "admin@example.com", "pass123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escalate user")
}

func TestCreateLibrarian(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.CreateLibrarian(context.Background(), "lib@example.com", "pass123", "Librarian")
	require.NoError(t, err)
	assert.True(t, u.IsLibrarian)
	assert.True(t, u.CanManageAllBooks())
	assert.False(t, u.IsSuperuser)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, "user@test.com", "pass123", Extra{})
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "  user@TEST.com ", "pass123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Authenticate(ctx, "user@test.com", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.Authenticate(ctx, "ghost@test.com", "pass123")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateRejectsInactive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inactive := false
	_, err := svc.CreateUser(ctx, "off@test.com", "pass123", Extra{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "off@test.com", "pass123")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateRehashesOutdatedCost(t *testing.T) {
	store := newMemStore()
	old := NewUserService(store, BcryptHasher{Cost: bcrypt.MinCost})
	ctx := context.Background()
	u, err := old.CreateUser(ctx, "rehash@test.com", "pass123", Extra{})
	require.NoError(t, err)

	current := NewUserService(store, BcryptHasher{Cost: bcrypt.MinCost + 1})
	_, err = current.Authenticate(ctx, "rehash@test.com", "pass123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(store.byID[u.ID].PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestGetByID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, "id@test.com", "pass123", Extra{})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "id@test.com", got.Email)

	_, err = svc.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestBcryptHasherNeedsRehash(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(hash))
	assert.True(t, BcryptHasher{Cost: bcrypt.MinCost + 2}.NeedsRehash(hash))
	assert.False(t, h.NeedsRehash("not-a-bcrypt-hash"))
}
