package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository is a read-only view of the account service's users table.
// Accounts are created and managed elsewhere; the messaging subsystem only
// resolves identifiers and display data.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, handle, display_name, zodiac_sign, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Handle,
		&user.DisplayName,
		&user.ZodiacSign,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	query := `
		SELECT id, handle, display_name, zodiac_sign, created_at, updated_at
		FROM users
		WHERE handle = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, handle).Scan(
		&user.ID,
		&user.Handle,
		&user.DisplayName,
		&user.ZodiacSign,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
