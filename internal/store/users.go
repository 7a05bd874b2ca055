package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mdpreview/internal/model"
)

const userColumns = `id, name, email, email_verified, provider, password_hash, token_generation, created_at_unixms, updated_at_unixms`

// Users persists accounts. Emails are normalized (trimmed, lowercased) on every path.
type Users struct {
	db *DB
}

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var verified int
	var provider string
	var created, updated int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &verified, &provider, &u.PasswordHash, &u.TokenGeneration, &created, &updated); err != nil {
		return model.User{}, err
	}
	u.EmailVerified = verified != 0
	u.Provider = model.AuthProvider(provider)
	u.CreatedAt = fromUnixMS(created)
	u.UpdatedAt = fromUnixMS(updated)
	return u, nil
}

func (s *Users) Create(ctx context.Context, u model.User) (model.User, error) {
	u.Email = model.NormalizeEmail(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" {
		return model.User{}, errors.New("create user: missing email")
	}
	if u.ID == "" {
		u.ID = newRandomID("user")
	}
	if u.Provider == "" {
		u.Provider = model.ProviderPassword
	}
	now := fromUnixMS(unixMS(s.db.now()))
	u.CreatedAt, u.UpdatedAt = now, now

	if _, err := s.GetByEmail(ctx, u.Email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}
	_, err := s.db.sql.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, boolToInt(u.EmailVerified), string(u.Provider), u.PasswordHash, u.TokenGeneration,
		unixMS(u.CreatedAt), unixMS(u.UpdatedAt))
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Users) Get(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.db.sql.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, strings.TrimSpace(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	u, err := scanUser(s.db.sql.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return u, err
}

func (s *Users) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Save writes every mutable column of u. Email uniqueness is enforced by the schema.
func (s *Users) Save(ctx context.Context, u model.User) (model.User, error) {
	u.Email = model.NormalizeEmail(u.Email)
	u.UpdatedAt = fromUnixMS(unixMS(s.db.now()))
	if other, err := s.GetByEmail(ctx, u.Email); err == nil && other.ID != u.ID {
		return model.User{}, ErrEmailTaken
	}
	res, err := s.db.sql.ExecContext(ctx, `UPDATE users SET name = ?, email = ?, email_verified = ?, provider = ?,
		password_hash = ?, token_generation = ?, updated_at_unixms = ? WHERE id = ?`,
		strings.TrimSpace(u.Name), u.Email, boolToInt(u.EmailVerified), string(u.Provider), u.PasswordHash,
		u.TokenGeneration, unixMS(u.UpdatedAt), u.ID)
	if err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.User{}, fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return u, nil
}
