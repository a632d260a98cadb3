package rating

import (
	"math"

	"github.com/park285/cheese-arena/internal/domain"
)

const (
	KFactor = 32
	// Default is the rating given to players with no stored profile.
	Default = 800
)

// Expected returns the expected score of a player rated a against one rated b.
func Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// NewRating applies one result (1 win, 0.5 draw, 0 loss) to old.
func NewRating(old int, expected, actual float64) int {
	return int(math.Floor(float64(old) + KFactor*(actual-expected) + 0.5))
}

// Compute returns the rating change for white and black. A match without a result changes nothing.
func Compute(white, black int, result domain.Winner) (dWhite, dBlack int) {
	var ws, bs float64
	switch result {
	case domain.WinnerWhite:
		ws, bs = 1, 0
	case domain.WinnerBlack:
		ws, bs = 0, 1
	case domain.WinnerDraw:
		ws, bs = 0.5, 0.5
	default:
		return 0, 0
	}
	we := Expected(white, black)
	be := 1 - we
	return NewRating(white, we, ws) - white, NewRating(black, be, bs) - black
}
