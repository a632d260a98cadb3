package chessdto

// Error codes that are not move rejections.
const (
	CodeMalformed     = "malformed"
	CodeUnknownEvent  = "unknown_event"
	CodeNoActiveMatch = "no_active_match"
	CodeMatchNotFound = "match_not_found"
	CodeAlreadyQueued = "already_queued"
	CodeNotQueued     = "not_queued"
	CodeTimeControl   = "bad_time_control"
	CodePlayerBusy    = "player_busy"
	CodeChallenge     = "challenge_failed"
	CodeInternal      = "internal"
	CodeUnavailable   = "unavailable"
)

// Error is the generic failure event.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) EventName() string { return EvError }

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}
