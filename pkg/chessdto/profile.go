package chessdto

import "time"

type ProfileView struct {
	PlayerID    string            `json:"playerId"`
	Rating      int               `json:"rating"`
	GamesPlayed int               `json:"gamesPlayed"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
	Recent      []MatchRecordView `json:"recent"`
	// ActiveMatch is the player's unfinished game as last mirrored to Redis.
	ActiveMatch *MatchStateView `json:"activeMatch,omitempty"`
}

type QueueView struct {
	Size    int `json:"size"`
	Matches int `json:"activeMatches"`
	// TimeControls counts waiting players per time control in milliseconds.
	TimeControls map[int64]int `json:"timeControls"`
}
