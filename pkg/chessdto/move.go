package chessdto

// MoveMade is broadcast to both players after an accepted move.
type MoveMade struct {
	MatchID   string     `json:"matchId"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Promotion string     `json:"promotion,omitempty"`
	SAN       string     `json:"san"`
	UCI       string     `json:"uci"`
	Position  string     `json:"position"`
	Turn      string     `json:"turn"`
	Clocks    ClocksView `json:"clocks"`
}

func (MoveMade) EventName() string { return EvMoveMade }

// InvalidMove goes to the submitter only.
type InvalidMove struct {
	MatchID string `json:"matchId,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (InvalidMove) EventName() string { return EvInvalidMove }
