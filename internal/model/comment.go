package model

import "time"

// Comment はポッドキャストに対するコメントを表す。
type Comment struct {
	ID        string
	PodcastID string
	UserID    string
	Text      string
	CreatedAt time.Time
}

// CommentWithAuthor は投稿者情報を結合したコメントの読み取りモデル。
type CommentWithAuthor struct {
	Comment
	AuthorName    string
	AuthorPicture string
}
