package pvp

import (
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
	StatusExpired  Status = "EXPIRED"
)

// Challenge is a friend invitation to a casual match.
type Challenge struct {
	ID          string
	Challenger  domain.Player
	TargetID    string
	Color       ColorChoice
	TimeControl time.Duration
	CreatedAt   time.Time
	Status      Status
}

// Sides orders challenger and accepter by the challenger's color choice.
// fixed is false for ColorRandom, leaving the draw to the caller.
func (c Challenge) Sides(accepter domain.Player) (white, black domain.Player, fixed bool) {
	switch c.Color {
	case ColorWhite:
		return c.Challenger, accepter, true
	case ColorBlack:
		return accepter, c.Challenger, true
	default:
		return c.Challenger, accepter, false
	}
}
