package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/ambaria/internal/model"
)

const commentWithAuthorSelect = `
	SELECT c.id, c.podcast_id, c.user_id, c.text, c.created_at,
	       u.name, u.profile_picture
	FROM comments c
	JOIN users u ON u.id = c.user_id`

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。
// ポッドキャストが存在確認後に削除された場合も外部キー制約で検出する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, podcast_id, user_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PodcastID, c.UserID, c.Text, c.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReferenceMissing
		}
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// FindByID は指定IDのコメントを投稿者情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.CommentWithAuthor, error) {
	row := r.db.QueryRowContext(ctx, commentWithAuthorSelect+` WHERE c.id = $1`, id)
	c, err := scanCommentWithAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}
	return c, nil
}

// ListByPodcastID はポッドキャストのコメント一覧を新しい順に返す。
func (r *PostgresCommentRepo) ListByPodcastID(ctx context.Context, podcastID string) ([]*model.CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		commentWithAuthorSelect+` WHERE c.podcast_id = $1 ORDER BY c.created_at DESC, c.id DESC`,
		podcastID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*model.CommentWithAuthor{}
	for rows.Next() {
		c, err := scanCommentWithAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// DeleteOwned は投稿者が一致する場合のみコメントを削除する。
func (r *PostgresCommentRepo) DeleteOwned(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// 0件の場合は存在しないのか投稿者が異なるのかを区別する
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check comment existence: %w", err)
	}
	if exists {
		return ErrNotOwner
	}
	return ErrRowNotFound
}

func scanCommentWithAuthor(s rowScanner) (*model.CommentWithAuthor, error) {
	c := &model.CommentWithAuthor{}
	err := s.Scan(&c.ID, &c.PodcastID, &c.UserID, &c.Text, &c.CreatedAt,
		&c.AuthorName, &c.AuthorPicture)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
