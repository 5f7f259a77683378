package models

import "time"

// PostKind is the type tag stored in votes.voteable_type for posts.
const PostKind = "Post"

type Post struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Body      string    `json:"body,omitempty"`
	Image     string    `json:"image"`
	UserID    int64     `gorm:"index" json:"user_id"`
	VoteCount int64     `gorm:"not null;default:0;<-:create" json:"vote_count"` // sum of vote values, written only by the counter cache
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the polymorphic reference votes use for this post.
func (p Post) Ref() Ref {
	return Ref{Type: PostKind, ID: p.ID}
}

type CreatePostRequest struct {
	Title string `json:"title" binding:"required,max=300"`
	Body  string `json:"body"`
	Image string `json:"image" binding:"omitempty,url"`
}
