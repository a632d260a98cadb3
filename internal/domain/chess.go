package domain

import (
	"strings"
	"time"
)

// Side is a fixed seat in a match.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

func (s Side) Opposite() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

func (s Side) Valid() bool { return s == SideWhite || s == SideBlack }

// Winner is the terminal result of a match. WinnerNone is used only while the match is still running.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

// WinnerOf returns the winner value for a side.
func WinnerOf(s Side) Winner {
	if s == SideWhite {
		return WinnerWhite
	}
	return WinnerBlack
}

type Reason string

const (
	ReasonCheckmate   Reason = "checkmate"
	ReasonStalemate   Reason = "stalemate"
	ReasonDraw        Reason = "draw"
	ReasonResignation Reason = "resignation"
	ReasonTimeout     Reason = "timeout"
	ReasonDisconnect  Reason = "disconnect"
)

// Outcome is set once, when a match completes. Detail carries the rules-engine method
// for generic draws (threefold repetition, insufficient material, ...).
type Outcome struct {
	Winner Winner `json:"winner"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Player is an ephemeral reference rebuilt on every connection event.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	ConnID string `json:"-"`
}

func (p Player) Valid() bool { return strings.TrimSpace(p.ID) != "" }

// MatchRecord is the append-only history row written once per completed match.
type MatchRecord struct {
	MatchID           string
	WhiteID           string
	WhiteName         string
	BlackID           string
	BlackName         string
	WhiteRatingBefore int
	WhiteRatingAfter  int
	BlackRatingBefore int
	BlackRatingAfter  int
	Result            Winner
	Reason            Reason
	Detail            string
	WinnerID          string
	MovesUCI          []string
	MovesSAN          []string
	PGN               string
	Ranked            bool
	TimeControl       time.Duration
	StartedAt         time.Time
	EndedAt           time.Time
}

// RatingProfile is the persisted rating state of one player.
type RatingProfile struct {
	PlayerID    string
	Rating      int
	GamesPlayed int
	UpdatedAt   time.Time
}
