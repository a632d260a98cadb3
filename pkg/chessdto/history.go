package chessdto

import "time"

// MatchRecordView is the HTTP shape of a persisted game.
type MatchRecordView struct {
	MatchID     string       `json:"matchId"`
	White       RatingChange `json:"white"`
	Black       RatingChange `json:"black"`
	Result      string       `json:"result"`
	Reason      string       `json:"reason"`
	Detail      string       `json:"detail,omitempty"`
	MovesSAN    []string     `json:"movesSan"`
	PGN         string       `json:"pgn,omitempty"`
	Ranked      bool         `json:"ranked"`
	TimeControl int64        `json:"timeControl"`
	StartedAt   time.Time    `json:"startedAt"`
	EndedAt     time.Time    `json:"endedAt"`
}

// MatchStateView is the HTTP shape of a live or cached match.
type MatchStateView struct {
	MatchID     string     `json:"matchId"`
	Status      string     `json:"status"`
	White       PlayerView `json:"white"`
	Black       PlayerView `json:"black"`
	Position    string     `json:"position"`
	Moves       []string   `json:"moves"`
	Clocks      ClocksView `json:"clocks"`
	Turn        string     `json:"turn"`
	TimeControl int64      `json:"timeControl"`
	Ranked      bool       `json:"ranked"`
	Winner      string     `json:"winner,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}
