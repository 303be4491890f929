package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// SupabaseConfig はSupabase Storageの接続設定。
type SupabaseConfig struct {
	URL    string // プロジェクトURL（例: "https://xxxx.supabase.co"）
	Key    string // service role key
	Bucket string
}

// SupabaseStore はSupabase Storageのバケットにメディアを保存する。
type SupabaseStore struct {
	projectURL string
	bucket     string

	upload func(bucket, path string, r io.Reader, opts storage.FileOptions) error
	remove func(bucket, path string) (removed int, err error)
}

// NewSupabaseStore はSupabaseStoreを生成する。
func NewSupabaseStore(cfg SupabaseConfig) *SupabaseStore {
	projectURL := strings.TrimRight(cfg.URL, "/")
	client := storage.NewClient(projectURL+"/storage/v1", cfg.Key, nil)

	return &SupabaseStore{
		projectURL: projectURL,
		bucket:     cfg.Bucket,
		upload: func(bucket, path string, r io.Reader, opts storage.FileOptions) error {
			_, err := client.UploadFile(bucket, path, r, opts)
			return err
		},
		remove: func(bucket, path string) (int, error) {
			removed, err := client.RemoveFile(bucket, []string{path})
			return len(removed), err
		},
	}
}

// Save はバケットにアップロードする。
func (s *SupabaseStore) Save(ctx context.Context, kind Kind, r io.Reader, suggestedName string) (string, error) {
	locator, err := NewLocator(kind, suggestedName)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	contentType := ContentType(locator)
	opts := storage.FileOptions{ContentType: &contentType}

	if err := s.upload(s.bucket, locator, r, opts); err != nil {
		return "", fmt.Errorf("failed to upload media to supabase: %w", err)
	}
	return locator, nil
}

// Delete はバケットからオブジェクトを削除する。
// Supabaseは存在しないパスの削除をエラーにしないため、削除件数で判定する。
func (s *SupabaseStore) Delete(ctx context.Context, locator string) error {
	if err := ValidateLocator(locator); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := s.remove(s.bucket, locator)
	if err != nil {
		return fmt.Errorf("failed to delete media from supabase: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// URL はpublicバケットの公開URLを返す。
func (s *SupabaseStore) URL(locator string) string {
	if locator == "" {
		return ""
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.projectURL, s.bucket, locator)
}

// compile-time interface check
var _ Store = (*SupabaseStore)(nil)
