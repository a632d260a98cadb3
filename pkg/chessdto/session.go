package chessdto

// PlayerView is how one side of a match appears on the wire.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// ClocksView carries remaining times in milliseconds.
type ClocksView struct {
	White   int64  `json:"white"`
	Black   int64  `json:"black"`
	Running string `json:"running,omitempty"`
}

type QueueJoined struct {
	Position  int `json:"position"`
	QueueSize int `json:"queueSize"`
}

func (QueueJoined) EventName() string { return EvQueueJoined }

type QueueUpdate struct {
	QueueSize int `json:"queueSize"`
}

func (QueueUpdate) EventName() string { return EvQueueUpdate }

type QueueLeft struct {
	Message string `json:"message,omitempty"`
}

func (QueueLeft) EventName() string { return EvQueueLeft }

type MatchFound struct {
	MatchID  string     `json:"matchId"`
	Opponent PlayerView `json:"opponent"`
	Color    string     `json:"color"`
}

func (MatchFound) EventName() string { return EvMatchFound }

// GameStart is sent on pairing and again on join_game resync.
type GameStart struct {
	MatchID     string     `json:"matchId"`
	White       PlayerView `json:"white"`
	Black       PlayerView `json:"black"`
	Position    string     `json:"position"`
	Moves       []string   `json:"moves"`
	Clocks      ClocksView `json:"clocks"`
	TimeControl int64      `json:"timeControl"`
	Ranked      bool       `json:"ranked"`
	Turn        string     `json:"turn"`
}

func (GameStart) EventName() string { return EvGameStart }

// RatingChange reports one player's rating around a finished game.
type RatingChange struct {
	PlayerView
	Before int `json:"before"`
	After  int `json:"after"`
	Change int `json:"change"`
}

type GameOver struct {
	MatchID string       `json:"matchId"`
	Winner  string       `json:"winner"`
	Reason  string       `json:"reason"`
	Detail  string       `json:"detail,omitempty"`
	Message string       `json:"message,omitempty"`
	White   RatingChange `json:"white"`
	Black   RatingChange `json:"black"`
	Ranked  bool         `json:"ranked"`
}

func (GameOver) EventName() string { return EvGameOver }
