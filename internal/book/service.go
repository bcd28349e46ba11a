package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrForbidden    = errors.New("not allowed to modify this book")
)

// Store is the persistence the service needs; *repo.BookRepo implements it.
type Store interface {
	List(ctx context.Context) ([]*entity.Book, error)
	GetByID(ctx context.Context, id int64) (*entity.Book, error)
	Create(ctx context.Context, b *entity.Book) error
	Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error)
	Delete(ctx context.Context, id int64) error
}

// BookService holds the book rules: the caller owns what it creates, and
// only the owner or a privileged user may change a book.
type BookService struct {
	repo Store
}

func NewBookService(r Store) *BookService {
	return &BookService{repo: r}
}

// List returns every book regardless of owner.
func (s *BookService) List(ctx context.Context) ([]*entity.Book, error) {
	return s.repo.List(ctx)
}

func (s *BookService) Get(ctx context.Context, id int64) (*entity.Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return b, nil
}

// Create stores a new book owned by caller. Every field of p must be set.
func (s *BookService) Create(ctx context.Context, caller *userentity.User, p entity.Patch) (*entity.Book, error) {
	if err := requireComplete(p); err != nil {
		return nil, err
	}
	b := &entity.Book{UserID: caller.ID}
	p.ApplyTo(b)
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Update applies p to the book. A complete patch is a full update.
func (s *BookService) Update(ctx context.Context, caller *userentity.User, id int64, p entity.Patch) (*entity.Book, error) {
	if _, err := s.Authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, p)
}

// update writes p without a permission check; callers run Authorize first.
func (s *BookService) update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	b, err := s.repo.Update(ctx, id, p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("update book %d: %w", id, err)
	}
	return b, nil
}

func (s *BookService) Delete(ctx context.Context, caller *userentity.User, id int64) error {
	if _, err := s.Authorize(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookNotFound
		}
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	return nil
}

// Authorize loads the book and checks caller may modify it.
func (s *BookService) Authorize(ctx context.Context, caller *userentity.User, id int64) (*entity.Book, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != caller.ID && !caller.CanManageAllBooks() {
		return nil, ErrForbidden
	}
	return b, nil
}
