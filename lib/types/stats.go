package types

import "time"

// StatsData summarizes a user's activity for the profile endpoint.
type StatsData struct {
	TotalLiked    int64      `json:"totalLiked"`
	TotalDisliked int64      `json:"totalDisliked"`
	TotalSearches int64      `json:"totalSearches"`
	FirstSearch   *time.Time `json:"firstSearch,omitempty"`
	LastSearch    *time.Time `json:"lastSearch,omitempty"`
}
