package chessdto

import (
	"errors"
	"strings"
	"time"
)

// Time controls arrive in milliseconds. Zero means "server default".

type JoinQueue struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	Rating      int    `json:"rating"`
	TimeControl int64  `json:"timeControl,omitempty"`
}

func (JoinQueue) EventName() string { return EvJoinQueue }
func (m JoinQueue) validate() error {
	if err := required([2]string{"playerId", m.PlayerID}, [2]string{"name", m.Name}); err != nil {
		return err
	}
	return nonNegative(m.TimeControl)
}

// TimeControlDuration converts the wire value.
func (m JoinQueue) TimeControlDuration() time.Duration {
	return time.Duration(m.TimeControl) * time.Millisecond
}

type LeaveQueue struct {
	PlayerID string `json:"playerId"`
}

func (LeaveQueue) EventName() string { return EvLeaveQueue }
func (m LeaveQueue) validate() error  { return required([2]string{"playerId", m.PlayerID}) }

type MakeMove struct {
	MatchID   string `json:"matchId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (MakeMove) EventName() string { return EvMakeMove }
func (m MakeMove) validate() error {
	return required([2]string{"matchId", m.MatchID}, [2]string{"from", m.From}, [2]string{"to", m.To})
}

type Resign struct {
	MatchID string `json:"matchId"`
}

func (Resign) EventName() string { return EvResign }
func (m Resign) validate() error  { return required([2]string{"matchId", m.MatchID}) }

// Disconnect is raised by the transport, never by clients.
type Disconnect struct {
	ConnectionID string `json:"connectionId"`
}

func (Disconnect) EventName() string { return EvDisconnect }
func (m Disconnect) validate() error  { return required([2]string{"connectionId", m.ConnectionID}) }

type RegisterUser struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

func (RegisterUser) EventName() string { return EvRegisterUser }
func (m RegisterUser) validate() error  { return required([2]string{"playerId", m.PlayerID}) }

type GetQueueSize struct{}

func (GetQueueSize) EventName() string { return EvGetQueueSize }
func (GetQueueSize) validate() error    { return nil }

type SendChallenge struct {
	FriendID       string `json:"friendId"`
	ChallengerName string `json:"challengerName"`
	TimeControl    int64  `json:"timeControl,omitempty"`
	Color          string `json:"color,omitempty"`
}

func (SendChallenge) EventName() string { return EvSendChallenge }
func (m SendChallenge) validate() error {
	if err := required([2]string{"friendId", m.FriendID}, [2]string{"challengerName", m.ChallengerName}); err != nil {
		return err
	}
	return nonNegative(m.TimeControl)
}

func (m SendChallenge) TimeControlDuration() time.Duration {
	return time.Duration(m.TimeControl) * time.Millisecond
}

type AcceptChallenge struct {
	ChallengeID  string `json:"challengeId"`
	AccepterName string `json:"accepterName,omitempty"`
}

func (AcceptChallenge) EventName() string { return EvAcceptChallenge }
func (m AcceptChallenge) validate() error  { return required([2]string{"challengeId", m.ChallengeID}) }

type DeclineChallenge struct {
	ChallengeID  string `json:"challengeId"`
	DeclinerName string `json:"declinerName,omitempty"`
}

func (DeclineChallenge) EventName() string { return EvDeclineChallenge }
func (m DeclineChallenge) validate() error  { return required([2]string{"challengeId", m.ChallengeID}) }

// JoinGame resyncs a reloaded client with its running match.
type JoinGame struct {
	MatchID string `json:"matchId"`
}

func (JoinGame) EventName() string { return EvJoinGame }
func (m JoinGame) validate() error  { return required([2]string{"matchId", m.MatchID}) }

func nonNegative(ms int64) error {
	if ms < 0 {
		return errors.New("timeControl must not be negative")
	}
	return nil
}

// NormalizeSquare lowercases and trims a square name.
func NormalizeSquare(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
