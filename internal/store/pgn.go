package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

func resultToPGN(w domain.Winner) string {
	switch w {
	case domain.WinnerWhite:
		return "1-0"
	case domain.WinnerBlack:
		return "0-1"
	case domain.WinnerDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders a record as PGN with the SAN move list.
func BuildPGN(rec *domain.MatchRecord) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	event := "Casual Game"
	if rec.Ranked {
		event = "Rated Game"
	}
	result := resultToPGN(rec.Result)

	fmt.Fprintf(&b, "[Event \"%s\"]\n", event)
	b.WriteString("[Site \"Cheese Arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.BlackName))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", result)
	if rec.Ranked {
		fmt.Fprintf(&b, "[WhiteElo \"%d\"]\n", rec.WhiteRatingBefore)
		fmt.Fprintf(&b, "[BlackElo \"%d\"]\n", rec.BlackRatingBefore)
	}
	if rec.TimeControl > 0 {
		fmt.Fprintf(&b, "[TimeControl \"%d\"]\n", int(rec.TimeControl/time.Second))
	}
	if rec.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(rec.Reason)))
	}
	b.WriteString("\n")

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(rec.MovesSAN[i]))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
