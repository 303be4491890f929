// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// GoogleIDは一度設定されたら変更されない。
type User struct {
	ID             string
	GoogleID       string
	Email          string
	Name           string
	ProfilePicture string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProviderProfile はIDプロバイダーから取得したプロフィール情報を表す。
type ProviderProfile struct {
	ExternalID string // プロバイダー側のユーザーID
	Email      string
	Name       string
	PictureURL string
}
