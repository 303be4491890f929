package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/ambaria/internal/model"
)

// podcastWithOwnerSelect は所有者名をJOINしたSELECT句。
const podcastWithOwnerSelect = `
	SELECT p.id, p.user_id, p.title, p.description, p.category, p.artist,
	       p.audio_locator, p.cover_locator, p.duration_sec, p.created_at, p.updated_at,
	       u.name
	FROM podcasts p
	JOIN users u ON u.id = p.user_id`

// podcastOrder は一覧の並び順。created_atが同じ場合もidで順序を固定する。
const podcastOrder = ` ORDER BY p.created_at DESC, p.id DESC`

// PostgresPodcastRepo はPostgreSQLを使用したポッドキャストリポジトリ。
type PostgresPodcastRepo struct {
	db *sql.DB
}

// NewPostgresPodcastRepo はPostgresPodcastRepoを生成する。
func NewPostgresPodcastRepo(db *sql.DB) *PostgresPodcastRepo {
	return &PostgresPodcastRepo{db: db}
}

// Create はポッドキャストを作成する。
func (r *PostgresPodcastRepo) Create(ctx context.Context, p *model.Podcast) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO podcasts (id, user_id, title, description, category, artist,
		                       audio_locator, cover_locator, duration_sec, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.UserID, p.Title, p.Description, p.Category, p.Artist,
		p.AudioLocator, p.CoverLocator, p.DurationSec, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert podcast: %w", err)
	}
	return nil
}

// FindByID は指定IDのポッドキャストを所有者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPodcastRepo) FindByID(ctx context.Context, id string) (*model.PodcastWithOwner, error) {
	row := r.db.QueryRowContext(ctx, podcastWithOwnerSelect+` WHERE p.id = $1`, id)
	p, err := scanPodcastWithOwner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find podcast by ID: %w", err)
	}
	return p, nil
}

// List はポッドキャスト一覧を新しい順に返す。categoryが空文字の場合は全件を返す。
func (r *PostgresPodcastRepo) List(ctx context.Context, category string) ([]*model.PodcastWithOwner, error) {
	if category == "" {
		return r.query(ctx, podcastWithOwnerSelect+podcastOrder)
	}
	return r.query(ctx, podcastWithOwnerSelect+` WHERE p.category = $1`+podcastOrder, category)
}

// ListByUserID は指定ユーザーが所有するポッドキャスト一覧を新しい順に返す。
func (r *PostgresPodcastRepo) ListByUserID(ctx context.Context, userID string) ([]*model.PodcastWithOwner, error) {
	return r.query(ctx, podcastWithOwnerSelect+` WHERE p.user_id = $1`+podcastOrder, userID)
}

func (r *PostgresPodcastRepo) query(ctx context.Context, query string, args ...any) ([]*model.PodcastWithOwner, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	defer rows.Close()

	podcasts := []*model.PodcastWithOwner{}
	for rows.Next() {
		p, err := scanPodcastWithOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan podcast: %w", err)
		}
		podcasts = append(podcasts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate podcasts: %w", err)
	}
	return podcasts, nil
}

// UpdateOwned は所有者が一致する場合のみ部分更新し、更新前の行を返す。
// 対象行はFOR UPDATEでロックし、所有者確認と更新の間に他の更新が入らないようにする。
func (r *PostgresPodcastRepo) UpdateOwned(ctx context.Context, id, ownerID string, update model.PodcastUpdate, now time.Time) (*model.Podcast, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := lockOwnedPodcast(ctx, tx, id, ownerID)
	if err != nil {
		return nil, err
	}

	sets, args := buildPodcastUpdate(update, now)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE podcasts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update podcast: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prev, nil
}

// buildPodcastUpdate はnilでないフィールドからSET句と引数を組み立てる。
// updated_atは常に更新する。
func buildPodcastUpdate(update model.PodcastUpdate, now time.Time) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Category != nil {
		add("category", *update.Category)
	}
	if update.Artist != nil {
		add("artist", *update.Artist)
	}
	if update.AudioLocator != nil {
		add("audio_locator", *update.AudioLocator)
	}
	if update.CoverLocator != nil {
		add("cover_locator", *update.CoverLocator)
	}
	if update.DurationSec != nil {
		add("duration_sec", *update.DurationSec)
	}
	add("updated_at", now)

	return sets, args
}

// DeleteOwnedWithComments は所有者が一致する場合のみ、コメントとポッドキャストを
// 同一トランザクションで削除する。
// 行ロック中はコメントの外部キー検査がブロックされるため、削除後に孤立コメントは残らない。
func (r *PostgresPodcastRepo) DeleteOwnedWithComments(ctx context.Context, id, ownerID string) (*model.Podcast, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := lockOwnedPodcast(ctx, tx, id, ownerID)
	if err != nil {
		return nil, 0, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE podcast_id = $1`, id)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete comments: %w", err)
	}
	commentsDeleted, err := result.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM podcasts WHERE id = $1`, id); err != nil {
		return nil, 0, fmt.Errorf("failed to delete podcast: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, commentsDeleted, nil
}

// lockOwnedPodcast はトランザクション内で対象行をロックして取得し、所有者を検証する。
func lockOwnedPodcast(ctx context.Context, tx *sql.Tx, id, ownerID string) (*model.Podcast, error) {
	p := &model.Podcast{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, category, artist,
		        audio_locator, cover_locator, duration_sec, created_at, updated_at
		 FROM podcasts WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Category, &p.Artist,
		&p.AudioLocator, &p.CoverLocator, &p.DurationSec, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock podcast: %w", err)
	}
	if p.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return p, nil
}

// ListCategories は空でないカテゴリの重複なし一覧を昇順で返す。
func (r *PostgresPodcastRepo) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM podcasts WHERE category <> '' ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcastWithOwner(s rowScanner) (*model.PodcastWithOwner, error) {
	p := &model.PodcastWithOwner{}
	err := s.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Category, &p.Artist,
		&p.AudioLocator, &p.CoverLocator, &p.DurationSec, &p.CreatedAt, &p.UpdatedAt,
		&p.OwnerName)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// compile-time interface check
var _ PodcastRepository = (*PostgresPodcastRepo)(nil)
