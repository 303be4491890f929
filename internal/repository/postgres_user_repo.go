package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/ambaria/internal/model"
)

const userColumns = `id, google_id, email, name, profile_picture, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByGoogleID は外部IdPのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google ID: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.GoogleID, &user.Email, &user.Name, &user.ProfilePicture,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create はユーザーを作成する。
// 単一のINSERTで作成し、一意制約違反は重複種別のエラーとして返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, google_id, email, name, profile_picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.GoogleID, user.Email, user.Name, user.ProfilePicture, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if dupErr := classifyUserWriteError(err); dupErr != nil {
			return dupErr
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はemail, name, profile_picture, updated_atを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, name = $3, profile_picture = $4, updated_at = $5
		 WHERE id = $1`,
		user.ID, user.Email, user.Name, user.ProfilePicture, user.UpdatedAt,
	)
	if err != nil {
		if dupErr := classifyUserWriteError(err); dupErr != nil {
			return dupErr
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
