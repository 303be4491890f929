package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore はローカルディスクにメディアを保存する。
// 保存したファイルはHandlerで配信する。
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore はLocalStoreを生成し、保存ディレクトリを作成する。
// baseURLは配信パスの絶対URL（例: "https://api.example.com/media"）。
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	for _, kind := range []Kind{KindAudio, KindImage} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media directory: %w", err)
		}
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save は一時ファイルに書き込んだ後にリネームし、書き込み途中のファイルを公開しない。
func (s *LocalStore) Save(ctx context.Context, kind Kind, r io.Reader, suggestedName string) (string, error) {
	locator, err := NewLocator(kind, suggestedName)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := s.path(locator)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close media: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store media: %w", err)
	}

	return locator, nil
}

// Delete はロケーターのファイルを削除する。
func (s *LocalStore) Delete(ctx context.Context, locator string) error {
	if err := ValidateLocator(locator); err != nil {
		return err
	}
	if err := os.Remove(s.path(locator)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return nil
}

// URL は配信用の公開URLを返す。
func (s *LocalStore) URL(locator string) string {
	if locator == "" {
		return ""
	}
	return s.baseURL + "/" + locator
}

// Handler は保存済みメディアを配信するhttp.Handlerを返す。
// ディレクトリ一覧は返さない。
func (s *LocalStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locator := strings.TrimPrefix(r.URL.Path, "/")
		if ValidateLocator(locator) != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

func (s *LocalStore) path(locator string) string {
	return filepath.Join(s.root, filepath.FromSlash(locator))
}

// compile-time interface check
var _ Store = (*LocalStore)(nil)
