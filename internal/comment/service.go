// Package comment はポッドキャストへのコメントのドメインロジックを提供する。
package comment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/ambaria/internal/metrics"
	"github.com/hitoshi/ambaria/internal/model"
	"github.com/hitoshi/ambaria/internal/repository"
)

// DefaultMaxLength はコメント本文の既定の最大文字数。
const DefaultMaxLength = 2000

// PodcastFinder はコメント対象のポッドキャストの存在確認に使う。
type PodcastFinder interface {
	FindByID(ctx context.Context, id string) (*model.PodcastWithOwner, error)
}

// Service はコメントのサービス層。
type Service struct {
	repo      repository.CommentRepository
	podcasts  PodcastFinder
	metrics   metrics.MetricsCollector
	maxLength int
	now       func() time.Time
}

// NewService はServiceを生成する。maxLengthが0以下の場合はDefaultMaxLengthを使う。
func NewService(
	repo repository.CommentRepository,
	podcasts PodcastFinder,
	mc metrics.MetricsCollector,
	maxLength int,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Service{
		repo:      repo,
		podcasts:  podcasts,
		metrics:   mc,
		maxLength: maxLength,
		now:       time.Now,
	}
}

// Add はポッドキャストにコメントを追加する。
// 存在確認後にポッドキャストが削除された場合も外部キー違反としてNotFoundを返す。
func (s *Service) Add(ctx context.Context, podcastID, authorID, text string) (*model.CommentWithAuthor, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError("comment text is required")
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return nil, model.NewValidationError(fmt.Sprintf("comment must be at most %d characters", s.maxLength))
	}

	if err := s.ensurePodcast(ctx, podcastID); err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:        uuid.New().String(),
		PodcastID: podcastID,
		UserID:    authorID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrReferenceMissing) {
			return nil, model.NewNotFoundError("podcast", podcastID)
		}
		slog.Error("failed to insert comment",
			slog.String("podcast_id", podcastID),
			slog.String("user_id", authorID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError("comment could not be saved")
	}

	s.metrics.RecordCommentCreated()
	slog.Info("comment added",
		slog.String("comment_id", c.ID),
		slog.String("podcast_id", podcastID),
		slog.String("user_id", authorID),
	)

	created, err := s.repo.FindByID(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload comment: %w", err)
	}
	if created == nil {
		// 追加直後にポッドキャストごと削除された
		return nil, model.NewNotFoundError("comment", c.ID)
	}
	return created, nil
}

// List はポッドキャストのコメント一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, podcastID string) ([]*model.CommentWithAuthor, error) {
	if err := s.ensurePodcast(ctx, podcastID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListByPodcastID(ctx, podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// Get は指定IDのコメントを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.CommentWithAuthor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("comment", id)
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	if c == nil {
		return nil, model.NewNotFoundError("comment", id)
	}
	return c, nil
}

// Delete は投稿者によるコメント削除を行う。
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError("comment", id)
	}
	err := s.repo.DeleteOwned(ctx, id, callerID)
	switch {
	case err == nil:
		slog.Info("comment deleted",
			slog.String("comment_id", id),
			slog.String("user_id", callerID),
		)
		return nil
	case errors.Is(err, repository.ErrRowNotFound):
		return model.NewNotFoundError("comment", id)
	case errors.Is(err, repository.ErrNotOwner):
		return model.NewForbiddenError("comment")
	default:
		return fmt.Errorf("failed to delete comment: %w", err)
	}
}

func (s *Service) ensurePodcast(ctx context.Context, podcastID string) error {
	if _, err := uuid.Parse(podcastID); err != nil {
		return model.NewNotFoundError("podcast", podcastID)
	}
	p, err := s.podcasts.FindByID(ctx, podcastID)
	if err != nil {
		return fmt.Errorf("failed to find podcast: %w", err)
	}
	if p == nil {
		return model.NewNotFoundError("podcast", podcastID)
	}
	return nil
}
