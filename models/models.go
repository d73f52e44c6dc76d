package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns preferences, rated movies and search history. The id is the
// subject of the caller's bearer token.
type User struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Genres    []string `gorm:"serializer:json" json:"genres"`
	Actors    []string `gorm:"serializer:json" json:"actors"`
	Directors []string `gorm:"serializer:json" json:"directors"`

	Liked    []LikedMovie    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"likedMovies"`
	Disliked []DislikedMovie `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"dislikedMovies"`
	Searches []SearchEntry   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// LikedMovie is a movie the user liked. A movie appears at most once per user.
type LikedMovie struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_liked_user_movie" json:"-"`
	IMDbID    string    `gorm:"column:imdb_id;not null;uniqueIndex:idx_liked_user_movie" json:"imdbID"`
	Title     string    `json:"title"`
	Year      string    `json:"year"`
	Poster    string    `json:"poster"`
	CreatedAt time.Time `json:"likedAt"`
}

// DislikedMovie mirrors LikedMovie for dislikes.
type DislikedMovie struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_disliked_user_movie" json:"-"`
	IMDbID    string    `gorm:"column:imdb_id;not null;uniqueIndex:idx_disliked_user_movie" json:"imdbID"`
	Title     string    `json:"title"`
	Year      string    `json:"year"`
	Poster    string    `json:"poster"`
	CreatedAt time.Time `json:"dislikedAt"`
}

// SearchEntry records one catalog search made through the API.
type SearchEntry struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	UserID     uuid.UUID `gorm:"type:text;not null;index" json:"-"`
	Query      string    `gorm:"not null" json:"query"`
	SearchedAt time.Time `gorm:"not null;index" json:"searchedAt"`
}

// All lists every model for migrations.
func All() []any {
	return []any{&User{}, &LikedMovie{}, &DislikedMovie{}, &SearchEntry{}}
}
