package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// User is a back-office account. Cashiers, supervisors and admins all live
// in the same table; the role gates what they can do.
type User struct {
	ID           string
	Name         string
	Role         string
	Phone        *string
	PasswordHash string
	CreatedAt    int64
}

// UserRepository handles user persistence in pos.db.
type UserRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB, log zerolog.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log.With().Str("repository", "users").Logger(),
	}
}

// Create adds a user with a bcrypt-hashed password.
func (r *UserRepository) Create(name, role, password string, phone *string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New().String(),
		Name:         name,
		Role:         role,
		Phone:        phone,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().Unix(),
	}
	_, err = r.db.Exec(
		"INSERT INTO users (id, name, role, phone, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Role, u.Phone, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", name, err)
	}
	return u, nil
}

// GetByName fetches a user by name. Returns nil when not found.
func (r *UserRepository) GetByName(name string) (*User, error) {
	row := r.db.QueryRow(
		"SELECT id, name, role, phone, password_hash, created_at FROM users WHERE name = ?", name,
	)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", name, err)
	}
	return &u, nil
}

// List returns all users, oldest first.
func (r *UserRepository) List() ([]*User, error) {
	rows, err := r.db.Query("SELECT id, name, role, phone, password_hash, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Phone, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Delete removes a user by id.
func (r *UserRepository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}

// Authenticate verifies a name/password pair. Returns nil without error on
// bad credentials; callers map that to a 401 without leaking which part
// was wrong.
func (r *UserRepository) Authenticate(name, password string) (*User, error) {
	u, err := r.GetByName(name)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}
