package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c != b.cost()
}

// unusablePasswordPrefix marks accounts created without a password; such
// hashes never verify.
const unusablePasswordPrefix = "!"

// Store is the persistence the service needs; *userrepo.UserRepo implements it.
type Store interface {
	Create(ctx context.Context, u *entity.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	SetPrivileges(ctx context.Context, id int64, p entity.Privileges) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// UserService is the identity store: account creation and password checks.
type UserService struct {
	repo   Store
	hasher PasswordHasher
}

func NewUserService(r Store, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher}
}

var (
	ErrUserNotFound   = entity.ErrNotFound
	ErrEmailRequired  = errors.New("user must have an email")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid credentials")
)

// Extra holds the optional fields accepted by CreateUser.
type Extra struct {
	Name        string
	IsActive    *bool
	IsStaff     bool
	IsLibrarian bool
}

// NormalizeEmail trims surrounding whitespace and lower-cases the domain part.
// The local part is kept as given since mailbox names may be case sensitive.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// CreateUser normalizes the email, hashes the password and persists a new account.
func (s *UserService) CreateUser(ctx context.Context, email, password string, extra Extra) (*entity.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	active := true
	if extra.IsActive != nil {
		active = *extra.IsActive
	}
	u := &entity.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(extra.Name),
		IsActive:     active,
		IsStaff:      extra.IsStaff,
		IsLibrarian:  extra.IsLibrarian,
	}
	if _, err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// CreateSuperuser creates a regular account and then escalates it to staff + superuser.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.CreateUser(ctx, email, password, Extra{})
	if err != nil {
		return nil, err
	}
	u.IsSuperuser = true
	u.IsStaff = true
	if err := s.repo.SetPrivileges(ctx, u.ID, u.Privileges()); err != nil {
		return nil, fmt.Errorf("escalate user %d: %w", u.ID, err)
	}
	return u, nil
}

// CreateLibrarian creates an account allowed to manage every book.
func (s *UserService) CreateLibrarian(ctx context.Context, email, password, name string) (*entity.User, error) {
	return s.CreateUser(ctx, email, password, Extra{Name: name, IsLibrarian: true})
}

// Authenticate checks an email/password pair. Unknown, inactive and
// password-less accounts all yield ErrBadCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !u.IsActive || strings.HasPrefix(u.PasswordHash, unusablePasswordPrefix) {
		return nil, ErrBadCredentials
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		if newHash, hErr := s.hasher.Hash(password); hErr == nil {
			if uErr := s.repo.UpdatePassword(ctx, u.ID, newHash); uErr == nil {
				u.PasswordHash = newHash
			}
		}
	}
	return u, nil
}

// GetByID returns the user with the given id or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if password == "" {
		return unusablePasswordPrefix + utilities.NewKSUID(), nil
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}
