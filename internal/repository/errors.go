package repository

import (
	"errors"

	"github.com/lib/pq"
)

// リポジトリ層のエラー。サービス層でAPIErrorへ変換する。
var (
	ErrDuplicateGoogleID = errors.New("duplicate google_id")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrReferenceMissing  = errors.New("referenced row does not exist")
	ErrRowNotFound       = errors.New("row not found")
	ErrNotOwner          = errors.New("row is owned by another user")
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// 制約名はmigrationsで明示的に指定している。
const (
	constraintUsersGoogleID = "users_google_id_key"
	constraintUsersEmail    = "users_email_key"
)

// classifyUserWriteError はusersへの書き込みエラーを重複種別に変換する。
// 該当しない場合はnilを返す。
func classifyUserWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case constraintUsersGoogleID:
		return ErrDuplicateGoogleID
	case constraintUsersEmail:
		return ErrDuplicateEmail
	}
	return nil
}

// isForeignKeyViolation は外部キー制約違反の場合にtrueを返す。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
