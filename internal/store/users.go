package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/linklift/linklift/internal/model"
)

// CreateUser inserts a new user. The ID, CreatedAt, and UpdatedAt fields on
// user are populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	const q = `INSERT INTO users
		(email, name, role, microsoft_id, is_active, created_at, updated_at)
		VALUES
		(:email, :name, :role, :microsoft_id, :is_active, :created_at, :updated_at)`

	id, err := s.namedInsert(ctx, q, user)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	q := s.db.Rebind("SELECT * FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &user, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by their unique email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	q := s.db.Rebind("SELECT * FROM users WHERE email = ?")
	if err := s.db.GetContext(ctx, &user, q, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// GetUserByMicrosoftID returns the user linked to the given external
// Microsoft account identifier.
func (s *Store) GetUserByMicrosoftID(ctx context.Context, microsoftID string) (*model.User, error) {
	var user model.User
	q := s.db.Rebind("SELECT * FROM users WHERE microsoft_id = ?")
	if err := s.db.GetContext(ctx, &user, q, microsoftID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by microsoft id: %w", err)
	}
	return &user, nil
}

// ListUsers returns all user accounts.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserMicrosoftID links an existing user to an external Microsoft
// account identifier.
func (s *Store) SetUserMicrosoftID(ctx context.Context, id int64, microsoftID string) error {
	q := s.db.Rebind("UPDATE users SET microsoft_id = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, microsoftID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user microsoft id: %w", err)
	}
	return checkAffected(result, "set user microsoft id")
}

// SetUserActive enables or soft-disables a user account.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	q := s.db.Rebind("UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return checkAffected(result, "set user active")
}

// SetUserRole changes a user's role.
func (s *Store) SetUserRole(ctx context.Context, id int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %q", role)
	}
	q := s.db.Rebind("UPDATE users SET role = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, role, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return checkAffected(result, "set user role")
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	q := s.db.Rebind("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	return checkAffected(result, "update user last login")
}

// checkAffected converts a zero-rows-affected result into ErrNotFound.
func checkAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
