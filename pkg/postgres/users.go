package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

const userColumns = `
	id, name, nickname, email, role, roles, phone, password_hash, requires_password_change,
	created_at, version`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	var roles []string
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Nickname,
		&u.Email,
		&role,
		&roles,
		&u.Phone,
		&u.PasswordHash,
		&u.RequiresPasswordChange,
		&u.CreatedAt,
		&u.Version,
	); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Roles = stringsToRoles(roles)
	return &u, nil
}

// GetUsers retrieves all user accounts ordered by name
func (d *DB) GetUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+userColumns+` FROM app_user ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks the account up case-insensitively
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	normalized := model.NormalizeEmail(email)
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE lower(email) = $1`, normalized))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user with email %s: %w", normalized, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (d *DB) InsertUser(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	_, err := d.pool.Exec(ctx, `
		INSERT INTO app_user (
			id, name, nickname, email, role, roles, phone, password_hash, requires_password_change,
			created_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	`,
		user.ID,
		user.Name,
		user.Nickname,
		user.Email,
		string(user.Role),
		rolesToStrings(user.Roles),
		user.Phone,
		user.PasswordHash,
		user.RequiresPasswordChange,
		user.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return db.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.Version = 1
	return nil
}

func (d *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	tag, err := d.pool.Exec(ctx, `
		UPDATE app_user SET
			name = $3, nickname = $4, email = $5, role = $6, roles = $7, phone = $8,
			password_hash = $9, requires_password_change = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		user.ID,
		user.Version,
		user.Name,
		user.Nickname,
		user.Email,
		string(user.Role),
		rolesToStrings(user.Roles),
		user.Phone,
		user.PasswordHash,
		user.RequiresPasswordChange,
	)
	if isUniqueViolation(err) {
		return db.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.casFailure(ctx, "app_user", user.ID, user.Version)
	}

	user.Version++
	return nil
}

func (d *DB) DeleteUser(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	return nil
}
