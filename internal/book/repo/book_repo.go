package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"

	colID              = "id"
	colUserID          = "user_id"
	colTitle           = "title"
	colAuthor          = "author"
	colPublicationDate = "publication_date"
	colCreatedAt       = "created_at"
	colUpdatedAt       = "updated_at"
)

var bookColumns = []any{colID, colUserID, colTitle, colAuthor, colPublicationDate, colCreatedAt, colUpdatedAt}

// BookRepo provides data access for the books table. Statements are built
// with goqu and executed through sqlx.
type BookRepo struct {
	db      *sqlx.DB
	builder goqu.DialectWrapper
}

func NewBookRepo(db *sqlx.DB) *BookRepo {
	return &BookRepo{db: db, builder: goqu.Dialect(dialectPostgres)}
}

// List returns every book ordered by ascending id.
func (r *BookRepo) List(ctx context.Context) ([]*entity.Book, error) {
	q, args, err := r.builder.
		From(tableBooks).
		Select(bookColumns...).
		Order(goqu.I(colID).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	books := []*entity.Book{}
	if err := r.db.SelectContext(ctx, &books, q, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetByID returns the book or sql.ErrNoRows.
func (r *BookRepo) GetByID(ctx context.Context, id int64) (*entity.Book, error) {
	q, args, err := r.builder.
		From(tableBooks).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	var b entity.Book
	if err := r.db.GetContext(ctx, &b, q, args...); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts b and fills in ID and timestamps.
func (r *BookRepo) Create(ctx context.Context, b *entity.Book) error {
	q, args, err := r.builder.
		Insert(tableBooks).
		Rows(goqu.Record{
			colUserID:          b.UserID,
			colTitle:           b.Title,
			colAuthor:          b.Author,
			colPublicationDate: b.PublicationDate.Format(entity.DateLayout),
		}).
		Returning(colID, colCreatedAt, colUpdatedAt).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// Update applies the set fields of p to the book with id and returns the
// stored row, or sql.ErrNoRows when it does not exist.
func (r *BookRepo) Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	rec := goqu.Record{colUpdatedAt: goqu.L("NOW()")}
	if p.Title != nil {
		rec[colTitle] = *p.Title
	}
	if p.Author != nil {
		rec[colAuthor] = *p.Author
	}
	if p.PublicationDate != nil {
		rec[colPublicationDate] = p.PublicationDate.Format(entity.DateLayout)
	}
	q, args, err := r.builder.
		Update(tableBooks).
		Set(rec).
		Where(goqu.C(colID).Eq(id)).
		Returning(bookColumns...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update query: %w", err)
	}
	var b entity.Book
	if err := r.db.QueryRowxContext(ctx, q, args...).StructScan(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Delete removes the book with id, or returns sql.ErrNoRows.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	q, args, err := r.builder.
		Delete(tableBooks).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
