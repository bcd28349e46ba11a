package entity

import "time"

// DateLayout is the wire and storage format of publication dates.
const DateLayout = "2006-01-02"

// Book represents a row in the `books` table.
type Book struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	PublicationDate time.Time `db:"publication_date"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Patch holds the caller-settable fields; nil means "leave unchanged".
type Patch struct {
	Title           *string
	Author          *string
	PublicationDate *time.Time
}

// Complete reports whether every field is set.
func (p Patch) Complete() bool {
	return p.Title != nil && p.Author != nil && p.PublicationDate != nil
}

// ApplyTo copies the set fields onto b.
func (p Patch) ApplyTo(b *Book) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.PublicationDate != nil {
		b.PublicationDate = *p.PublicationDate
	}
}
