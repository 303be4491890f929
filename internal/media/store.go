// Package media はアップロードされた音声・画像ファイルの保存先を抽象化する。
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ErrNotFound は指定されたロケーターのファイルが存在しない場合のエラー。
var ErrNotFound = errors.New("media not found")

// ErrInvalidLocator はロケーターの形式が不正な場合のエラー。
var ErrInvalidLocator = errors.New("invalid media locator")

// Store はメディアファイルの保存先。
// ロケーターは保存先に依存しない相対パス（例: "audio/<uuid>-episode.mp3"）。
type Store interface {
	// Save はrの内容を保存し、ロケーターを返す。
	// suggestedNameは元のファイル名で、拡張子とファイル名の一部に使われる。
	Save(ctx context.Context, kind Kind, r io.Reader, suggestedName string) (string, error)

	// Delete はロケーターのファイルを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, locator string) error

	// URL はクライアントが取得に使う公開URLを返す。
	URL(locator string) string
}

// Upload はアップロードされたファイルを表す。
// Bodyがio.Seekerを実装する場合は、保存前の検査で読んだ後に先頭へ戻せる。
type Upload struct {
	Filename string
	Body     io.Reader
	Size     int64
}

// Kind はメディアの種類。ロケーターの先頭ディレクトリになる。
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "images"
)

var allowedExtensions = map[Kind]map[string]struct{}{
	KindAudio: {"mp3": {}, "wav": {}, "ogg": {}, "aac": {}, "flac": {}},
	KindImage: {"png": {}, "jpg": {}, "jpeg": {}, "gif": {}},
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

// ContentType はファイル名の拡張子からContent-Typeを返す。
func ContentType(filename string) string {
	if ct, ok := contentTypes[Extension(filename)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// maxSlugLength はロケーターに含めるファイル名部分の最大長。
const maxSlugLength = 60

// Extension はファイル名の拡張子を小文字・ドットなしで返す。
func Extension(filename string) string {
	ext := path.Ext(strings.ReplaceAll(filename, "\\", "/"))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ValidateExtension はファイル名の拡張子がkindで許可されているかを検証する。
func ValidateExtension(kind Kind, filename string) error {
	allowed, ok := allowedExtensions[kind]
	if !ok {
		return fmt.Errorf("unknown media kind: %q", kind)
	}
	ext := Extension(filename)
	if _, ok := allowed[ext]; !ok {
		return fmt.Errorf("file type %q is not allowed for %s", ext, kind)
	}
	return nil
}

// NewLocator は衝突しないロケーターを生成する。
// 元のファイル名はslug化して付与し、パス区切りや制御文字を含めない。
func NewLocator(kind Kind, suggestedName string) (string, error) {
	if err := ValidateExtension(kind, suggestedName); err != nil {
		return "", err
	}
	ext := Extension(suggestedName)

	base := path.Base(strings.ReplaceAll(suggestedName, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	name := slug.Make(base)
	if len(name) > maxSlugLength {
		name = strings.Trim(name[:maxSlugLength], "-")
	}

	id := uuid.New().String()
	if name == "" {
		return fmt.Sprintf("%s/%s.%s", kind, id, ext), nil
	}
	return fmt.Sprintf("%s/%s-%s.%s", kind, id, name, ext), nil
}

// ValidateLocator はロケーターが保存先の外を指していないかを検証する。
func ValidateLocator(locator string) error {
	if locator == "" || strings.HasPrefix(locator, "/") || strings.Contains(locator, "\\") {
		return ErrInvalidLocator
	}
	if path.Clean(locator) != locator {
		return ErrInvalidLocator
	}
	dir, file := path.Split(locator)
	if file == "" || file == "." || file == ".." {
		return ErrInvalidLocator
	}
	switch Kind(strings.TrimSuffix(dir, "/")) {
	case KindAudio, KindImage:
		return nil
	default:
		return ErrInvalidLocator
	}
}
