package models

import "time"

// CommentKind is the type tag stored in votes.voteable_type for comments.
const CommentKind = "Comment"

type Comment struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Body       string    `gorm:"not null" json:"body"`
	AuthorID   int64     `gorm:"index" json:"author_id"`
	PostID     int64     `gorm:"index" json:"post_id"`
	VotesCount int64     `gorm:"not null;default:0;<-:create" json:"votes_count"` // number of votes, written only by the counter cache
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c Comment) Ref() Ref {
	return Ref{Type: CommentKind, ID: c.ID}
}

type CreateCommentRequest struct {
	Body string `json:"body" binding:"required,max=10000"`
}
