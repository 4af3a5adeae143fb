// Package identity is the credential store: it persists user accounts and
// profile fields in PostgreSQL, verifies passwords with bcrypt, and issues
// and validates the signed tokens that bind live connections to identities.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley/chat-app/internal/route"
)

var (
	// ErrInvalidCredentials is returned by Verify when the username is
	// unknown or the password does not match. Both cases collapse into one
	// error so login responses do not leak which usernames exist.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUserExists is returned by Register for a duplicate username.
	ErrUserExists = errors.New("identity: user already exists")

	// ErrInvalidUsername is returned by Register for a malformed username.
	ErrInvalidUsername = errors.New("identity: invalid username")
)

const bcryptCost = 10

// Profile is the read/write cached view of a user's public fields.
type Profile struct {
	Username   string
	Status     string
	AvatarURL  string
	Background string
}

// ProfileUpdate carries a partial profile change; nil fields are left
// untouched.
type ProfileUpdate struct {
	Status     *string
	AvatarURL  *string
	Background *string
}

// Store manages user accounts in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool to PostgreSQL and verifies it.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("identity: open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("identity: postgres connection failed: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register creates a new account. The username is lowercased and validated;
// the password is hashed with bcrypt before it ever reaches the database.
// A fresh account gets a generated avatar, "Available" status, and the
// default background.
func (s *Store) Register(ctx context.Context, username, password string) (*Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !route.ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	profile := &Profile{
		Username:   username,
		Status:     "Available",
		AvatarURL:  DefaultAvatarURL(username),
		Background: "default",
	}

	const query = `
		INSERT INTO users (username, password_hash, status, avatar_url, background)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query,
		profile.Username, string(hash), profile.Status, profile.AvatarURL, profile.Background)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("identity: insert user: %w", err)
	}
	return profile, nil
}

// Verify checks a username/password pair and returns the profile on success.
func (s *Store) Verify(ctx context.Context, username, password string) (*Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	const query = `
		SELECT username, password_hash, status, avatar_url, background
		FROM users WHERE username = $1`

	var (
		profile Profile
		hash    string
	)
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&profile.Username, &hash, &profile.Status, &profile.AvatarURL, &profile.Background)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("identity: select user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &profile, nil
}

// GetProfile retrieves a user's profile. Returns nil if the user does not
// exist.
func (s *Store) GetProfile(ctx context.Context, username string) (*Profile, error) {
	const query = `
		SELECT username, status, avatar_url, background
		FROM users WHERE username = $1`

	var profile Profile
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&profile.Username, &profile.Status, &profile.AvatarURL, &profile.Background)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: get profile: %w", err)
	}
	return &profile, nil
}

// ListProfiles returns every known user's profile, ordered by username.
// The directory broadcaster merges this with the presence snapshot.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	const query = `
		SELECT username, status, avatar_url, background
		FROM users ORDER BY username`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("identity: list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Username, &p.Status, &p.AvatarURL, &p.Background); err != nil {
			return nil, fmt.Errorf("identity: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: list profiles: %w", err)
	}
	return profiles, nil
}

// UpdateProfile applies a partial profile change and returns the updated
// profile. Returns nil if the user does not exist.
func (s *Store) UpdateProfile(ctx context.Context, username string, update ProfileUpdate) (*Profile, error) {
	const query = `
		UPDATE users SET
			status     = COALESCE($2, status),
			avatar_url = COALESCE($3, avatar_url),
			background = COALESCE($4, background),
			updated_at = NOW()
		WHERE username = $1
		RETURNING username, status, avatar_url, background`

	var profile Profile
	err := s.db.QueryRowContext(ctx, query, username,
		update.Status, update.AvatarURL, update.Background).Scan(
		&profile.Username, &profile.Status, &profile.AvatarURL, &profile.Background)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: update profile: %w", err)
	}
	return &profile, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultAvatarURL builds the generated-initials avatar assigned at
// registration.
func DefaultAvatarURL(username string) string {
	return "https://api.dicebear.com/8.x/initials/svg?seed=" + username
}
