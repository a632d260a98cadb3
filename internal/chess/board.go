package chess

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid fen")
)

// Board owns one rules-engine game. It is not safe for concurrent use; the owning match serializes access.
type Board struct {
	game *nchess.Game
}

// Applied describes a move accepted by the board.
type Applied struct {
	UCI       string
	SAN       string
	From      string
	To        string
	Promotion string
}

type EndKind string

const (
	EndCheckmate EndKind = "checkmate"
	EndStalemate EndKind = "stalemate"
	EndDraw      EndKind = "draw"
)

// Ending is a terminal condition reported by the rules engine.
// Winner is empty for draws.
type Ending struct {
	Kind   EndKind
	Winner domain.Side
	Method string
}

func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// BoardFromFEN rebuilds a board from a serialized position.
func BoardFromFEN(fen string) (*Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Board{game: nchess.NewGame(opt)}, nil
}

func (b *Board) FEN() string { return b.game.FEN() }

func (b *Board) Turn() domain.Side {
	if b.game.Position().Turn() == nchess.White {
		return domain.SideWhite
	}
	return domain.SideBlack
}

func (b *Board) MoveCount() int { return len(b.game.Moves()) }

// LegalMoves returns every legal move in UCI, sorted.
func (b *Board) LegalMoves() []string {
	moves := b.game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, moves[i].String())
	}
	sort.Strings(out)
	return out
}

// Apply plays from→to. Promotion is one of q/r/b/n and defaults to a queen when the move needs one.
// On error the board is unchanged.
func (b *Board) Apply(from, to, promotion string) (Applied, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if !validSquare(from) || !validSquare(to) || from == to {
		return Applied{}, ErrIllegalMove
	}
	if len(promotion) > 1 || (promotion != "" && !strings.Contains("qrbn", promotion)) {
		return Applied{}, ErrIllegalMove
	}
	if b.game.Outcome() != nchess.NoOutcome {
		return Applied{}, ErrIllegalMove
	}

	candidates := []string{from + to, from + to + "q"}
	if promotion != "" {
		candidates = []string{from + to + promotion, from + to}
	}

	before := b.game.Position()
	for _, uci := range candidates {
		if err := b.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			continue
		}
		last := lastMove(b.game)
		if last == nil {
			return Applied{}, ErrIllegalMove
		}
		b.claimDraw()
		played := last.String()
		return Applied{
			UCI:       played,
			SAN:       nchess.AlgebraicNotation{}.Encode(before, last),
			From:      last.S1().String(),
			To:        last.S2().String(),
			Promotion: strings.TrimPrefix(played, from+to),
		}, nil
	}
	return Applied{}, ErrIllegalMove
}

// Ending reports whether the game is over and why.
func (b *Board) Ending() (Ending, bool) {
	switch b.game.Outcome() {
	case nchess.NoOutcome:
		return Ending{}, false
	case nchess.WhiteWon:
		return Ending{Kind: EndCheckmate, Winner: domain.SideWhite, Method: methodName(b.game.Method())}, true
	case nchess.BlackWon:
		return Ending{Kind: EndCheckmate, Winner: domain.SideBlack, Method: methodName(b.game.Method())}, true
	}
	if b.game.Method() == nchess.Stalemate {
		return Ending{Kind: EndStalemate, Method: methodName(nchess.Stalemate)}, true
	}
	return Ending{Kind: EndDraw, Method: methodName(b.game.Method())}, true
}

// claimDraw ends the game on threefold repetition or the fifty-move rule,
// which the engine otherwise only offers as claimable.
func (b *Board) claimDraw() {
	if b.game.Outcome() != nchess.NoOutcome {
		return
	}
	for _, m := range b.game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			_ = b.game.Draw(m)
			return
		}
	}
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return strings.ToLower(m.String())
	}
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
