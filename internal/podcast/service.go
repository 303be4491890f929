// Package podcast はポッドキャストの投稿・閲覧・更新・削除のドメインロジックを提供する。
package podcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ambaria/internal/media"
	"github.com/hitoshi/ambaria/internal/metrics"
	"github.com/hitoshi/ambaria/internal/model"
	"github.com/hitoshi/ambaria/internal/repository"
)

// categoryAll は全カテゴリを表すフィルタ値。大文字小文字は区別しない。
const categoryAll = "all"

// Sanitizer は説明文のHTMLを無害化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// CreateInput はポッドキャスト作成の入力。
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Artist      string
	Audio       *media.Upload // 必須
	Cover       *media.Upload // 任意
}

// UpdateInput はポッドキャスト更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Artist      *string
	Audio       *media.Upload
	Cover       *media.Upload
}

// Service はポッドキャストのサービス層。
type Service struct {
	repo      repository.PodcastRepository
	store     media.Store
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	repo repository.PodcastRepository,
	store media.Store,
	sanitizer Sanitizer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		store:     store,
		sanitizer: sanitizer,
		metrics:   mc,
		now:       time.Now,
	}
}

// Create はメディアを保存してからポッドキャストを作成する。
// 行の作成に失敗した場合は保存済みのメディアを削除する。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Podcast, error) {
	title := strings.TrimSpace(in.Title)
	category := strings.TrimSpace(in.Category)
	artist := strings.TrimSpace(in.Artist)
	description := s.sanitizer.Sanitize(in.Description)

	switch {
	case title == "":
		return nil, model.NewValidationError("title is required")
	case description == "":
		return nil, model.NewValidationError("description is required")
	case category == "":
		return nil, model.NewValidationError("category is required")
	case in.Audio == nil:
		return nil, model.NewValidationError("audio file is required")
	}

	// 何も書き込む前にファイル種別を検証する
	if err := media.ValidateExtension(media.KindAudio, in.Audio.Filename); err != nil {
		return nil, model.NewValidationError(err.Error())
	}
	if in.Cover != nil {
		if err := media.ValidateExtension(media.KindImage, in.Cover.Filename); err != nil {
			return nil, model.NewValidationError(err.Error())
		}
	}

	duration, err := probeDuration(in.Audio)
	if err != nil {
		return nil, err
	}

	audioLocator, err := s.save(ctx, media.KindAudio, in.Audio)
	if err != nil {
		return nil, err
	}

	var coverLocator string
	if in.Cover != nil {
		coverLocator, err = s.save(ctx, media.KindImage, in.Cover)
		if err != nil {
			s.discard(ctx, audioLocator)
			return nil, err
		}
	}

	now := s.now()
	p := &model.Podcast{
		ID:           uuid.New().String(),
		UserID:       ownerID,
		Title:        title,
		Description:  description,
		Category:     category,
		Artist:       artist,
		AudioLocator: audioLocator,
		CoverLocator: coverLocator,
		DurationSec:  duration,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		slog.Error("failed to insert podcast, removing stored media",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		s.discard(ctx, audioLocator, coverLocator)
		return nil, model.NewStorageError("podcast could not be saved")
	}

	s.metrics.RecordPodcastCreated()
	slog.Info("podcast created",
		slog.String("podcast_id", p.ID),
		slog.String("user_id", ownerID),
	)
	return p, nil
}

// List はポッドキャスト一覧を新しい順に返す。
// categoryが空または"All"の場合は全件を返す。
func (s *Service) List(ctx context.Context, category string) ([]*model.PodcastWithOwner, error) {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, categoryAll) {
		category = ""
	}
	podcasts, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	return podcasts, nil
}

// ListOwnedBy は指定ユーザーのポッドキャスト一覧を返す。
func (s *Service) ListOwnedBy(ctx context.Context, ownerID string) ([]*model.PodcastWithOwner, error) {
	podcasts, err := s.repo.ListByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned podcasts: %w", err)
	}
	return podcasts, nil
}

// ListCategories は使用中のカテゴリ一覧を返す。
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// Get は指定IDのポッドキャストを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.PodcastWithOwner, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("podcast", id)
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("podcast", id)
	}
	return p, nil
}

// Update は所有者によるポッドキャストの部分更新を行う。
// 新しいメディアで置き換えた古いファイルは、行の更新が確定した後に削除する。
func (s *Service) Update(ctx context.Context, id, callerID string, in UpdateInput) (*model.PodcastWithOwner, error) {
	// 入力の検証より先に存在と所有者を確認する。所有者以外は入力に関係なくForbiddenとなる
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != callerID {
		return nil, model.NewForbiddenError("podcast")
	}

	update, err := s.buildUpdate(in)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() && in.Audio == nil && in.Cover == nil {
		return nil, model.NewValidationError("no fields to update")
	}

	var written []string
	if in.Audio != nil {
		duration, err := probeDuration(in.Audio)
		if err != nil {
			return nil, err
		}
		locator, err := s.save(ctx, media.KindAudio, in.Audio)
		if err != nil {
			return nil, err
		}
		written = append(written, locator)
		update.AudioLocator = &locator
		update.DurationSec = &duration
	}
	if in.Cover != nil {
		locator, err := s.save(ctx, media.KindImage, in.Cover)
		if err != nil {
			s.discard(ctx, written...)
			return nil, err
		}
		written = append(written, locator)
		update.CoverLocator = &locator
	}

	prev, err := s.repo.UpdateOwned(ctx, id, callerID, update, s.now())
	if err != nil {
		s.discard(ctx, written...)
		switch {
		case errors.Is(err, repository.ErrRowNotFound):
			return nil, model.NewNotFoundError("podcast", id)
		case errors.Is(err, repository.ErrNotOwner):
			return nil, model.NewForbiddenError("podcast")
		}
		slog.Error("failed to update podcast",
			slog.String("podcast_id", id),
			slog.String("user_id", callerID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError("podcast could not be updated")
	}

	if update.AudioLocator != nil && prev.AudioLocator != *update.AudioLocator {
		s.discard(ctx, prev.AudioLocator)
	}
	if update.CoverLocator != nil && prev.CoverLocator != *update.CoverLocator {
		s.discard(ctx, prev.CoverLocator)
	}

	slog.Info("podcast updated",
		slog.String("podcast_id", id),
		slog.String("user_id", callerID),
	)
	return s.Get(ctx, id)
}

// buildUpdate は入力を検証し、リポジトリの更新内容に変換する。
func (s *Service) buildUpdate(in UpdateInput) (model.PodcastUpdate, error) {
	var update model.PodcastUpdate

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return update, model.NewValidationError("title must not be empty")
		}
		update.Title = &title
	}
	if in.Description != nil {
		description := s.sanitizer.Sanitize(*in.Description)
		if description == "" {
			return update, model.NewValidationError("description must not be empty")
		}
		update.Description = &description
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category == "" {
			return update, model.NewValidationError("category must not be empty")
		}
		update.Category = &category
	}
	if in.Artist != nil {
		artist := strings.TrimSpace(*in.Artist)
		update.Artist = &artist
	}
	if in.Audio != nil {
		if err := media.ValidateExtension(media.KindAudio, in.Audio.Filename); err != nil {
			return update, model.NewValidationError(err.Error())
		}
	}
	if in.Cover != nil {
		if err := media.ValidateExtension(media.KindImage, in.Cover.Filename); err != nil {
			return update, model.NewValidationError(err.Error())
		}
	}
	return update, nil
}

// Delete は所有者によるポッドキャスト削除を行う。
// コメントと行は同一トランザクションで削除し、メディアは確定後にベストエフォートで削除する。
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError("podcast", id)
	}

	deleted, commentsDeleted, err := s.repo.DeleteOwnedWithComments(ctx, id, callerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRowNotFound):
			return model.NewNotFoundError("podcast", id)
		case errors.Is(err, repository.ErrNotOwner):
			return model.NewForbiddenError("podcast")
		}
		slog.Error("failed to delete podcast",
			slog.String("podcast_id", id),
			slog.String("user_id", callerID),
			slog.String("error", err.Error()),
		)
		return model.NewStorageError("podcast could not be deleted")
	}

	s.metrics.RecordPodcastDeleted(commentsDeleted)
	slog.Info("podcast deleted",
		slog.String("podcast_id", id),
		slog.String("user_id", callerID),
		slog.Int64("comments_deleted", commentsDeleted),
	)

	s.discard(ctx, deleted.AudioLocator, deleted.CoverLocator)
	return nil
}

// MediaURL はロケーターの公開URLを返す。空のロケーターには空文字を返す。
func (s *Service) MediaURL(locator string) string {
	if locator == "" {
		return ""
	}
	return s.store.URL(locator)
}

// save はアップロードを保存し、保存したバイト数を記録する。
func (s *Service) save(ctx context.Context, kind media.Kind, upload *media.Upload) (string, error) {
	counter := &countingReader{r: upload.Body}
	locator, err := s.store.Save(ctx, kind, counter, upload.Filename)
	if err != nil {
		slog.Error("failed to store media",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return "", model.NewStorageError("media could not be stored")
	}
	s.metrics.RecordMediaStored(string(kind), counter.n)
	return locator, nil
}

// discard はメディアをベストエフォートで削除する。失敗はログに残すだけで呼び出し元には返さない。
func (s *Service) discard(ctx context.Context, locators ...string) {
	// リクエストがキャンセルされても後片付けは行う
	ctx = context.WithoutCancel(ctx)
	for _, locator := range locators {
		if locator == "" {
			continue
		}
		err := s.store.Delete(ctx, locator)
		if err == nil || errors.Is(err, media.ErrNotFound) {
			continue
		}
		kind, _, _ := strings.Cut(locator, "/")
		s.metrics.RecordMediaDeleteFailure(kind)
		slog.Warn("failed to delete media",
			slog.String("locator", locator),
			slog.String("error", err.Error()),
		)
	}
}

// probeDuration はMP3の場合に再生時間（秒）を求める。
// 読み込み後は先頭に戻す必要があるため、Bodyがio.Seekerでない場合は0を返す。
func probeDuration(upload *media.Upload) (int, error) {
	if media.Extension(upload.Filename) != "mp3" {
		return 0, nil
	}
	rs, ok := upload.Body.(io.ReadSeeker)
	if !ok {
		return 0, nil
	}

	seconds, probeErr := media.ProbeMP3Duration(rs)
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, model.NewStorageError("failed to rewind uploaded audio")
	}
	if probeErr != nil {
		slog.Warn("could not determine audio duration",
			slog.String("filename", upload.Filename),
			slog.String("error", probeErr.Error()),
		)
		return 0, nil
	}
	return int(seconds + 0.5), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
