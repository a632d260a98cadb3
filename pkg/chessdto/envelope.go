package chessdto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the frame of every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound events.
const (
	EvJoinQueue        = "join_queue"
	EvLeaveQueue       = "leave_queue"
	EvMakeMove         = "make_move"
	EvResign           = "resign"
	EvDisconnect       = "disconnect"
	EvRegisterUser     = "register_user"
	EvGetQueueSize     = "get_queue_size"
	EvSendChallenge    = "send_challenge"
	EvAcceptChallenge  = "accept_challenge"
	EvDeclineChallenge = "decline_challenge"
	EvJoinGame         = "join_game"
)

// Outbound events.
const (
	EvQueueJoined       = "queue_joined"
	EvQueueUpdate       = "queue_update"
	EvQueueLeft         = "queue_left"
	EvMatchFound        = "match_found"
	EvGameStart         = "game_start"
	EvMoveMade          = "move_made"
	EvInvalidMove       = "invalid_move"
	EvGameOver          = "game_over"
	EvError             = "error"
	EvChallengeSent     = "challenge_sent"
	EvChallengeReceived = "challenge_received"
	EvChallengeDeclined = "challenge_declined"
)

// Inbound is one of the client→server variants in requests.go.
type Inbound interface {
	EventName() string
	validate() error
}

// Outbound is one of the server→client variants.
type Outbound interface {
	EventName() string
}

// Decode parses a frame into its typed variant and checks required fields.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var in Inbound
	switch strings.TrimSpace(env.Event) {
	case EvJoinQueue:
		in = &JoinQueue{}
	case EvLeaveQueue:
		in = &LeaveQueue{}
	case EvMakeMove:
		in = &MakeMove{}
	case EvResign:
		in = &Resign{}
	case EvDisconnect:
		in = &Disconnect{}
	case EvRegisterUser:
		in = &RegisterUser{}
	case EvGetQueueSize:
		in = &GetQueueSize{}
	case EvSendChallenge:
		in = &SendChallenge{}
	case EvAcceptChallenge:
		in = &AcceptChallenge{}
	case EvDeclineChallenge:
		in = &DeclineChallenge{}
	case EvJoinGame:
		in = &JoinGame{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, in); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	}
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return in, nil
}

// Encode frames an outbound variant.
func Encode(o Outbound) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: o.EventName(), Data: data})
}

func required(fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
