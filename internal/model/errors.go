// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrNotFound) のようにコード単位で判定できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeCredentialExpired = "CREDENTIAL_EXPIRED"
	ErrCodeAuthCodeRejected  = "AUTH_CODE_REJECTED"
	ErrCodeUpstreamAuth      = "UPSTREAM_AUTH_ERROR"
	ErrCodeStorage           = "STORAGE_ERROR"
	ErrCodeEmailConflict     = "EMAIL_CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// errors.Is 判定用のセンチネル。
var (
	ErrValidation        = &APIError{Code: ErrCodeValidation}
	ErrNotFound          = &APIError{Code: ErrCodeNotFound}
	ErrForbidden         = &APIError{Code: ErrCodeForbidden}
	ErrUnauthenticated   = &APIError{Code: ErrCodeUnauthenticated}
	ErrInvalidCredential = &APIError{Code: ErrCodeInvalidCredential}
	ErrCredentialExpired = &APIError{Code: ErrCodeCredentialExpired}
	ErrAuthCodeRejected  = &APIError{Code: ErrCodeAuthCodeRejected}
	ErrUpstreamAuth      = &APIError{Code: ErrCodeUpstreamAuth}
	ErrStorage           = &APIError{Code: ErrCodeStorage}
	ErrEmailConflict     = &APIError{Code: ErrCodeEmailConflict}
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// kindには "podcast" や "comment" などのリソース種別を渡す。
func NewNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, id),
		Category: "content",
		Action:   "IDを確認してください。削除済みの可能性があります。",
	}
}

// NewForbiddenError は所有者以外による操作エラーを生成する。
func NewForbiddenError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この%sを変更する権限がありません。", kind),
		Category: "auth",
		Action:   "自分が作成したコンテンツのみ変更・削除できます。",
	}
}

// NewUnauthenticatedError は認証情報が提示されていない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialError は不正なトークンのエラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCredentialExpiredError は有効期限切れトークンのエラーを生成する。
func NewCredentialExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAuthCodeRejectedError は認可コードが拒否された場合のエラーを生成する。
func NewAuthCodeRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthCodeRejected,
		Message:  fmt.Sprintf("認可コードが受け付けられませんでした: %s", reason),
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewUpstreamAuthError はIDプロバイダーとの通信失敗エラーを生成する。
func NewUpstreamAuthError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamAuth,
		Message:  fmt.Sprintf("IDプロバイダーとの通信に失敗しました: %s", reason),
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewStorageError は永続化またはメディア保存の失敗エラーを生成する。
func NewStorageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", reason),
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmailConflictError はメールアドレスが別アカウントで使用済みの場合のエラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは別のアカウントで使用されています。",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
