package model

import "time"

// Podcast はアップロードされたポッドキャストエピソードを表す。
type Podcast struct {
	ID           string
	UserID       string
	Title        string
	Description  string
	Category     string
	Artist       string
	AudioLocator string
	CoverLocator string // 空文字はカバー画像なし
	DurationSec  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PodcastWithOwner は所有者名を結合したポッドキャストの読み取りモデル。
type PodcastWithOwner struct {
	Podcast
	OwnerName string
}

// PodcastUpdate はポッドキャストの部分更新内容を表す。
// nilのフィールドは変更しない。
type PodcastUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	Artist       *string
	AudioLocator *string
	CoverLocator *string
	DurationSec  *int
}

// IsEmpty は変更対象のフィールドがひとつもない場合にtrueを返す。
func (u PodcastUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil &&
		u.Artist == nil && u.AudioLocator == nil && u.CoverLocator == nil && u.DurationSec == nil
}
