package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when inserting a user whose email exists.
var ErrEmailTaken = errors.New("email already registered")

// mysqlDuplicateEntry is MariaDB's ER_DUP_ENTRY error number.
const mysqlDuplicateEntry = 1062

// userRecord is a row of the users table.
type userRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserRepository defines the data access contract for identities.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	// CreateWithProfile inserts the user and its profile row in one
	// transaction.
	CreateWithProfile(ctx context.Context, user *userRecord, meta auth.Metadata) error
	FindByEmail(ctx context.Context, email string) (*userRecord, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateWithProfile inserts a users row and its profiles row.
func (r *userRepository) CreateWithProfile(ctx context.Context, user *userRecord, meta auth.Metadata) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, updated_at) VALUES (?, ?, ?, ?)`,
		user.ID, meta.FirstName, meta.LastName, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

// FindByEmail retrieves a user by email. Returns ErrUserNotFound if none.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*userRecord, error) {
	query := `SELECT id, email, password_hash, created_at, last_login_at
	          FROM users WHERE email = ?`

	u := &userRecord{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return u, nil
}

// EmailExists reports whether an account already uses email.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// UpdateLastLogin stamps the user's last successful sign-in.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// ProfileRepository implements auth.ProfileStore over the profiles table.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a profile store backed by the given DB pool.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FetchProfile reads the profile for userID. A missing row is an error,
// matching a single-row query that finds nothing.
func (r *ProfileRepository) FetchProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	var first, last sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT first_name, last_name FROM profiles WHERE id = ?`, userID,
	).Scan(&first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &auth.Profile{FirstName: first.String, LastName: last.String}, nil
}

// UpdateProfile writes the names for userID, creating the row if needed.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID string, update auth.ProfileUpdate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, updated_at) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE first_name = VALUES(first_name),
		                         last_name = VALUES(last_name),
		                         updated_at = VALUES(updated_at)`,
		userID, update.FirstName, update.LastName, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
