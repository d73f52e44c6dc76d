// Package users persists user preferences, rated movies and search history.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/icco/cinerec/lib/lock"
	"github.com/icco/cinerec/lib/recommend"
	"github.com/icco/cinerec/lib/types"
	"github.com/icco/cinerec/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyLiked    = errors.New("movie already liked")
	ErrAlreadyDisliked = errors.New("movie already disliked")
)

// DefaultLockTimeout bounds how long a rating waits for the user's lock.
const DefaultLockTimeout = 5 * time.Second

// Preferences are the user's stated tastes. Lists are stored normalized.
type Preferences struct {
	Genres    []string `json:"genres" validate:"max=50,dive,max=100"`
	Actors    []string `json:"actors" validate:"max=50,dive,max=100"`
	Directors []string `json:"directors" validate:"max=50,dive,max=100"`
}

// Movie identifies a movie being rated.
type Movie struct {
	IMDbID string
	Title  string
	Year   string
	Poster string
}

// Profile is the full view of a user.
type Profile struct {
	User  models.User     `json:"user"`
	Stats types.StatsData `json:"stats"`
}

type Store struct {
	db          *gorm.DB
	locker      lock.Locker
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewStore(db *gorm.DB, locker lock.Locker, logger *slog.Logger) *Store {
	return &Store{
		db:          db,
		locker:      locker,
		lockTimeout: DefaultLockTimeout,
		logger:      logger,
	}
}

// EnsureUser creates the user row if it does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, id uuid.UUID) error {
	u := models.User{ID: id, Genres: []string{}, Actors: []string{}, Directors: []string{}}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
	if res.Error != nil {
		return fmt.Errorf("failed to ensure user: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("Created user", slog.String("user", id.String()))
	}
	return nil
}

// Snapshot returns an immutable copy of everything the recommender reads.
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (recommend.Snapshot, error) {
	u, err := s.load(ctx, s.db, id, true)
	if err != nil {
		return recommend.Snapshot{}, err
	}

	snap := recommend.Snapshot{
		Genres:    append([]string(nil), u.Genres...),
		Actors:    append([]string(nil), u.Actors...),
		Directors: append([]string(nil), u.Directors...),
		Liked:     make([]recommend.RatedMovie, 0, len(u.Liked)),
		Disliked:  make([]recommend.RatedMovie, 0, len(u.Disliked)),
	}
	for _, m := range u.Liked {
		snap.Liked = append(snap.Liked, recommend.RatedMovie{IMDbID: m.IMDbID, Title: m.Title, Year: m.Year, Poster: m.Poster})
	}
	for _, m := range u.Disliked {
		snap.Disliked = append(snap.Disliked, recommend.RatedMovie{IMDbID: m.IMDbID, Title: m.Title, Year: m.Year, Poster: m.Poster})
	}
	return snap, nil
}

func (s *Store) Preferences(ctx context.Context, id uuid.UUID) (Preferences, error) {
	u, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return Preferences{}, err
	}
	return Preferences{Genres: u.Genres, Actors: u.Actors, Directors: u.Directors}, nil
}

// UpdatePreferences replaces all three lists and returns what was stored.
func (s *Store) UpdatePreferences(ctx context.Context, id uuid.UUID, p Preferences) (Preferences, error) {
	p = Preferences{
		Genres:    normalize(p.Genres),
		Actors:    normalize(p.Actors),
		Directors: normalize(p.Directors),
	}

	res := s.db.WithContext(ctx).Model(&models.User{ID: id}).
		Select("Genres", "Actors", "Directors").
		Updates(models.User{Genres: p.Genres, Actors: p.Actors, Directors: p.Directors})
	if res.Error != nil {
		return Preferences{}, fmt.Errorf("failed to update preferences: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Preferences{}, ErrUserNotFound
	}
	return p, nil
}

// Like adds m to the user's liked movies, removing it from the dislikes.
// It returns ErrAlreadyLiked, leaving state untouched, when m is already liked.
func (s *Store) Like(ctx context.Context, id uuid.UUID, m Movie) ([]models.LikedMovie, error) {
	var liked []models.LikedMovie
	err := s.rate(ctx, id, func(tx *gorm.DB) error {
		exists, err := rated(tx, &models.LikedMovie{}, id, m.IMDbID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyLiked
		}
		if err := tx.Where("user_id = ? AND imdb_id = ?", id, m.IMDbID).Delete(&models.DislikedMovie{}).Error; err != nil {
			return fmt.Errorf("failed to clear dislike: %w", err)
		}
		row := models.LikedMovie{UserID: id, IMDbID: m.IMDbID, Title: m.Title, Year: m.Year, Poster: m.Poster}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert like: %w", err)
		}
		return tx.Where("user_id = ?", id).Order("created_at, id").Find(&liked).Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Liked movie", slog.String("user", id.String()), slog.String("imdb_id", m.IMDbID))
	return liked, nil
}

// Dislike mirrors Like.
func (s *Store) Dislike(ctx context.Context, id uuid.UUID, m Movie) ([]models.DislikedMovie, error) {
	var disliked []models.DislikedMovie
	err := s.rate(ctx, id, func(tx *gorm.DB) error {
		exists, err := rated(tx, &models.DislikedMovie{}, id, m.IMDbID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyDisliked
		}
		if err := tx.Where("user_id = ? AND imdb_id = ?", id, m.IMDbID).Delete(&models.LikedMovie{}).Error; err != nil {
			return fmt.Errorf("failed to clear like: %w", err)
		}
		row := models.DislikedMovie{UserID: id, IMDbID: m.IMDbID, Title: m.Title, Year: m.Year, Poster: m.Poster}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert dislike: %w", err)
		}
		return tx.Where("user_id = ?", id).Order("created_at, id").Find(&disliked).Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Disliked movie", slog.String("user", id.String()), slog.String("imdb_id", m.IMDbID))
	return disliked, nil
}

// rate runs fn in a transaction while holding the user's lock.
func (s *Store) rate(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB) error) error {
	return lock.WithLock(ctx, s.locker, "user-"+id.String(), s.lockTimeout, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return fmt.Errorf("failed to load user: %w", err)
			}
			if n == 0 {
				return ErrUserNotFound
			}
			return fn(tx)
		})
	})
}

func rated(tx *gorm.DB, model any, id uuid.UUID, imdbID string) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("user_id = ? AND imdb_id = ?", id, imdbID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check rating: %w", err)
	}
	return n > 0, nil
}

// RecordSearch appends query to the user's search history.
func (s *Store) RecordSearch(ctx context.Context, id uuid.UUID, query string) error {
	entry := models.SearchEntry{UserID: id, Query: query, SearchedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// SearchHistory returns the most recent searches, newest first.
func (s *Store) SearchHistory(ctx context.Context, id uuid.UUID, limit int) ([]models.SearchEntry, error) {
	entries := []models.SearchEntry{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", id).
		Order("searched_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load search history: %w", err)
	}
	return entries, nil
}

// Profile returns the user with rated movies and activity counts.
func (s *Store) Profile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	db := s.db.WithContext(ctx)
	u, err := s.load(ctx, db, id, true)
	if err != nil {
		return nil, err
	}

	p := &Profile{User: *u}
	p.Stats.TotalLiked = int64(len(u.Liked))
	p.Stats.TotalDisliked = int64(len(u.Disliked))
	if err := db.Model(&models.SearchEntry{}).Where("user_id = ?", id).Count(&p.Stats.TotalSearches).Error; err != nil {
		return nil, fmt.Errorf("failed to count searches: %w", err)
	}

	if p.Stats.TotalSearches > 0 {
		var first, last models.SearchEntry
		if err := db.Where("user_id = ?", id).Order("searched_at ASC, id ASC").First(&first).Error; err != nil {
			return nil, fmt.Errorf("failed to load first search: %w", err)
		}
		if err := db.Where("user_id = ?", id).Order("searched_at DESC, id DESC").First(&last).Error; err != nil {
			return nil, fmt.Errorf("failed to load last search: %w", err)
		}
		p.Stats.FirstSearch = &first.SearchedAt
		p.Stats.LastSearch = &last.SearchedAt
	}
	return p, nil
}

func (s *Store) load(ctx context.Context, db *gorm.DB, id uuid.UUID, withRatings bool) (*models.User, error) {
	q := db.WithContext(ctx)
	if withRatings {
		byTime := func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }
		q = q.Preload("Liked", byTime).Preload("Disliked", byTime)
	}

	var u models.User
	if err := q.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u.Liked == nil {
		u.Liked = []models.LikedMovie{}
	}
	if u.Disliked == nil {
		u.Disliked = []models.DislikedMovie{}
	}
	return &u, nil
}

// normalize trims entries, drops blanks and duplicates, and keeps first
// occurrence order. The result is never nil.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
