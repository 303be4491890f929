// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ambaria/internal/model"
	"github.com/hitoshi/ambaria/internal/repository"
)

// PictureValidator はプロフィール画像URLを検証する。
type PictureValidator interface {
	ValidateExternalURL(rawURL string) error
}

// Config はユーザー管理の設定。
type Config struct {
	// EmailProviderAuthoritative がtrueの場合、ログインのたびにプロバイダーのemailで上書きする。
	EmailProviderAuthoritative bool
}

// Service はユーザー管理のサービス層。
// ログイン時のユーザー作成・更新を提供する。
type Service struct {
	userRepo repository.UserRepository
	pictures PictureValidator
	config   Config
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, pictures PictureValidator, config Config) *Service {
	return &Service{
		userRepo: userRepo,
		pictures: pictures,
		config:   config,
		now:      time.Now,
	}
}

// Reconcile はプロバイダーのプロフィールに対応するユーザーを作成または更新する。
// 外部IDごとにユーザーは1件のみ存在し、idとgoogle_idは変更しない。
// 保存済みの値と同じ場合は更新しないため、繰り返し呼び出しても結果は変わらない。
func (s *Service) Reconcile(ctx context.Context, profile model.ProviderProfile) (*model.User, error) {
	if profile.ExternalID == "" {
		return nil, model.NewValidationError("external id is required")
	}
	if profile.Email == "" {
		return nil, model.NewValidationError("email is required")
	}

	profile.Name = strings.TrimSpace(profile.Name)
	profile.PictureURL = s.acceptedPicture(profile.PictureURL)

	existing, err := s.userRepo.FindByGoogleID(ctx, profile.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google id: %w", err)
	}
	if existing != nil {
		return s.updateIfChanged(ctx, existing, profile)
	}

	now := s.now()
	user := &model.User{
		ID:             uuid.New().String(),
		GoogleID:       profile.ExternalID,
		Email:          profile.Email,
		Name:           profile.Name,
		ProfilePicture: profile.PictureURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.userRepo.Create(ctx, user)
	switch {
	case err == nil:
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
		)
		return user, nil
	case errors.Is(err, repository.ErrDuplicateGoogleID):
		// 同じ外部IDの初回ログインが並行した場合は、先に作成された行を更新する
		winner, findErr := s.userRepo.FindByGoogleID(ctx, profile.ExternalID)
		if findErr != nil {
			return nil, fmt.Errorf("failed to re-fetch user after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("user vanished after google_id conflict: %s", profile.ExternalID)
		}
		return s.updateIfChanged(ctx, winner, profile)
	case errors.Is(err, repository.ErrDuplicateEmail):
		slog.Warn("email already owned by another account",
			slog.String("email", profile.Email),
		)
		return nil, model.NewEmailConflictError()
	default:
		slog.Error("failed to create user",
			slog.String("google_id", profile.ExternalID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError("user could not be saved")
	}
}

// updateIfChanged はプロフィールに差分がある場合のみ更新する。
func (s *Service) updateIfChanged(ctx context.Context, user *model.User, profile model.ProviderProfile) (*model.User, error) {
	updated := *user
	updated.Name = profile.Name
	updated.ProfilePicture = profile.PictureURL
	if s.config.EmailProviderAuthoritative {
		updated.Email = profile.Email
	}

	if updated.Name == user.Name &&
		updated.ProfilePicture == user.ProfilePicture &&
		updated.Email == user.Email {
		return user, nil
	}

	updated.UpdatedAt = s.now()
	if err := s.userRepo.UpdateProfile(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailConflictError()
		}
		slog.Error("failed to update user profile",
			slog.String("user_id", updated.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError("user could not be saved")
	}

	slog.Info("user profile updated", slog.String("user_id", updated.ID))
	return &updated, nil
}

// acceptedPicture は検証に通らない画像URLを空文字に置き換える。
func (s *Service) acceptedPicture(rawURL string) string {
	if rawURL == "" || s.pictures == nil {
		return rawURL
	}
	if err := s.pictures.ValidateExternalURL(rawURL); err != nil {
		slog.Warn("dropping profile picture URL",
			slog.String("reason", err.Error()),
		)
		return ""
	}
	return rawURL
}
