// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ambaria/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGoogleID は外部IdPのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。
	// google_idが重複した場合はErrDuplicateGoogleID、emailが重複した場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はemail, name, profile_picture, updated_atを更新する。
	// id と google_id は変更しない。emailが重複した場合はErrDuplicateEmailを返す。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// PodcastRepository はポッドキャストデータの永続化インターフェース。
type PodcastRepository interface {
	// Create はポッドキャストを作成する。
	Create(ctx context.Context, podcast *model.Podcast) error

	// FindByID は指定IDのポッドキャストを所有者名付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PodcastWithOwner, error)

	// List はポッドキャスト一覧を新しい順に返す。categoryが空文字の場合は全件を返す。
	List(ctx context.Context, category string) ([]*model.PodcastWithOwner, error)

	// ListByUserID は指定ユーザーが所有するポッドキャスト一覧を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.PodcastWithOwner, error)

	// UpdateOwned は所有者が一致する場合のみ部分更新し、更新前の行を返す。
	// 行が存在しない場合はErrRowNotFound、所有者が異なる場合はErrNotOwnerを返す。
	UpdateOwned(ctx context.Context, id, ownerID string, update model.PodcastUpdate, now time.Time) (*model.Podcast, error)

	// DeleteOwnedWithComments は所有者が一致する場合のみ、コメントとポッドキャストを
	// 同一トランザクションで削除し、削除した行と削除したコメント数を返す。
	// 行が存在しない場合はErrRowNotFound、所有者が異なる場合はErrNotOwnerを返す。
	DeleteOwnedWithComments(ctx context.Context, id, ownerID string) (*model.Podcast, int64, error)

	// ListCategories は空でないカテゴリの重複なし一覧を昇順で返す。
	ListCategories(ctx context.Context) ([]string, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	// 対象のポッドキャストが存在しない場合はErrReferenceMissingを返す。
	Create(ctx context.Context, comment *model.Comment) error

	// FindByID は指定IDのコメントを投稿者情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CommentWithAuthor, error)

	// ListByPodcastID はポッドキャストのコメント一覧を新しい順に返す。
	ListByPodcastID(ctx context.Context, podcastID string) ([]*model.CommentWithAuthor, error)

	// DeleteOwned は投稿者が一致する場合のみコメントを削除する。
	// 行が存在しない場合はErrRowNotFound、投稿者が異なる場合はErrNotOwnerを返す。
	DeleteOwned(ctx context.Context, id, userID string) error
}
