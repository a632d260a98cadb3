package match

import "errors"

var (
	ErrNotActive      = errors.New("match is not active")
	ErrNotInMatch     = errors.New("player is not in this match")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrTimeExpired    = errors.New("clock expired")
	ErrAlreadyStarted = errors.New("match already started")
)

// Rejection codes sent back to the acting client.
const (
	CodeNotActive   = "not_active"
	CodeNotInMatch  = "not_in_match"
	CodeNotYourTurn = "not_your_turn"
	CodeIllegalMove = "illegal_move"
	CodeTimeExpired = "time_expired"
)

// RejectedError is returned when an action is refused.
//
// Every code except CodeTimeExpired leaves the match untouched. CodeTimeExpired is
// different: the mover's clock had already run out, so the rejection itself ends
// the match with a timeout win for the opponent. The match is then completed and
// the caller must finalize it like any other finished game.
type RejectedError struct {
	Code string
	Err  error
}

func (e *RejectedError) Error() string { return e.Err.Error() }
func (e *RejectedError) Unwrap() error { return e.Err }

func reject(code string, err error) error { return &RejectedError{Code: code, Err: err} }

// AsRejected unwraps a RejectedError.
func AsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
