package chessdto

type ChallengeSent struct {
	ChallengeID string `json:"challengeId"`
	FriendID    string `json:"friendId"`
}

func (ChallengeSent) EventName() string { return EvChallengeSent }

type ChallengeReceived struct {
	ChallengeID    string `json:"challengeId"`
	ChallengerID   string `json:"challengerId"`
	ChallengerName string `json:"challengerName"`
	TimeControl    int64  `json:"timeControl"`
}

func (ChallengeReceived) EventName() string { return EvChallengeReceived }

type ChallengeDeclined struct {
	ChallengeID string `json:"challengeId"`
	Message     string `json:"message"`
}

func (ChallengeDeclined) EventName() string { return EvChallengeDeclined }
