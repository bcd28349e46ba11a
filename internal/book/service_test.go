package book

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

// memStore is an in-memory Store used by the package tests.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*entity.Book
	failErr error
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[int64]*entity.Book)}
}

func (m *memStore) List(_ context.Context) ([]*entity.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]*entity.Book, 0, len(m.byID))
	for _, b := range m.byID {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	b, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, b *entity.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.nextID++
	now := time.Now().UTC()
	b.ID, b.CreatedAt, b.UpdatedAt = m.nextID, now, now
	cp := *b
	m.byID[b.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	p.ApplyTo(b)
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.byID, id)
	return nil
}

var (
	alice     = &userentity.User{ID: 1, Email: "alice@test.com", IsActive: true}
	bob       = &userentity.User{ID: 2, Email: "bob@test.com", IsActive: true}
	librarian = &userentity.User{ID: 3, Email: "lib@test.com", IsActive: true, IsLibrarian: true}
	admin     = &userentity.User{ID: 4, Email: "admin@test.com", IsActive: true, IsStaff: true, IsSuperuser: true}
)

func strPtr(s string) *string { return &s }

func mustDate(s string) time.Time {
	d, err := time.Parse(entity.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedBook(t *testing.T, svc *BookService, owner *userentity.User, title string) *entity.Book {
	t.Helper()
	published := mustDate("2001-02-03")
	b, err := svc.Create(context.Background(), owner, entity.Patch{
		Title:           strPtr(title),
		Author:          strPtr("Author of " + title),
		PublicationDate: &published,
	})
	require.NoError(t, err)
	return b
}

func TestCreateOwnedByCaller(t *testing.T) {
	store := newMemStore()
	svc := NewBookService(store)
	published := mustDate("1965-08-01")

	b, err := svc.Create(context.Background(), alice, entity.Patch{Title: strPtr("Dune"), Author: strPtr("Herbert"), PublicationDate: &published})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, b.UserID)
	assert.Equal(t, int64(1), b.ID)
	assert.Equal(t, "Dune", store.byID[1].Title)
	assert.Equal(t, published, store.byID[1].PublicationDate)
}

func TestCreateRequiresEveryField(t *testing.T) {
	store := newMemStore()
	svc := NewBookService(store)

	_, err := svc.Create(context.Background(), alice, entity.Patch{Title: strPtr("Dune")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string][]string{
		"author":           {MsgRequired},
		"publication_date": {MsgRequired},
	}, verr.Fields)
	assert.Empty(t, store.byID)
}

func TestListAllOwnersByID(t *testing.T) {
	svc := NewBookService(newMemStore())
	first := seedBook(t, svc, alice, "One")
	second := seedBook(t, svc, bob, "Two")

	books, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, first.ID, books[0].ID)
	assert.Equal(t, second.ID, books[1].ID)
}

func TestGetNotFound(t *testing.T) {
	svc := NewBookService(newMemStore())

	_, err := svc.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetWrapsStoreError(t *testing.T) {
	store := newMemStore()
	store.failErr = errors.New("db down")
	svc := NewBookService(store)

	_, err := svc.Get(context.Background(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBookNotFound)
	assert.Contains(t, err.Error(), "get book 5")
}

func TestPartialUpdateKeepsOtherFields(t *testing.T) {
	svc := NewBookService(newMemStore())
	b := seedBook(t, svc, alice, "Old")

	got, err := svc.Update(context.Background(), alice, b.ID, entity.Patch{Title: strPtr("New")})
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, b.Author, got.Author)
	assert.Equal(t, b.PublicationDate, got.PublicationDate)
	assert.Equal(t, alice.ID, got.UserID)
}

func TestUpdatePermissions(t *testing.T) {
	ctx := context.Background()
	svc := NewBookService(newMemStore())
	b := seedBook(t, svc, alice, "Mine")

	_, err := svc.Update(ctx, bob, b.ID, entity.Patch{Title: strPtr("Stolen")})
	assert.ErrorIs(t, err, ErrForbidden)

	for _, u := range []*userentity.User{librarian, admin} {
		got, err := svc.Update(ctx, u, b.ID, entity.Patch{Title: strPtr("By " + u.Email)})
		require.NoError(t, err)
		assert.Equal(t, "By "+u.Email, got.Title)
		assert.Equal(t, alice.ID, got.UserID)
	}

	_, err = svc.Update(ctx, alice, 404, entity.Patch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewBookService(newMemStore())
	b := seedBook(t, svc, alice, "Gone")

	assert.ErrorIs(t, svc.Delete(ctx, bob, b.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, alice, b.ID))

	_, err := svc.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, alice, b.ID), ErrBookNotFound)
}

func TestLibrarianCanDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewBookService(newMemStore())
	b := seedBook(t, svc, alice, "Weeded")

	require.NoError(t, svc.Delete(ctx, librarian, b.ID))
}
