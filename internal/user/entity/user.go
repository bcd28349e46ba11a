package entity

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches a lookup.
var ErrNotFound = errors.New("user not found")

// User represents an account row in the `users` table.
type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Name         string    `db:"name"`
	IsActive     bool      `db:"is_active"`
	IsStaff      bool      `db:"is_staff"`
	IsLibrarian  bool      `db:"is_librarian"`
	IsSuperuser  bool      `db:"is_superuser"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Privileges is the set of role flags that can be changed after creation.
type Privileges struct {
	IsStaff     bool
	IsLibrarian bool
	IsSuperuser bool
}

// Privileges returns the current role flags of u.
func (u *User) Privileges() Privileges {
	return Privileges{IsStaff: u.IsStaff, IsLibrarian: u.IsLibrarian, IsSuperuser: u.IsSuperuser}
}

// CanManageAllBooks reports whether u may modify books owned by others.
func (u *User) CanManageAllBooks() bool {
	return u.IsLibrarian || u.IsStaff || u.IsSuperuser
}
