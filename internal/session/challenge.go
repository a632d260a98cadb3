package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/pvp"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func challengeReceived(ch pvp.Challenge) chessdto.ChallengeReceived {
	return chessdto.ChallengeReceived{
		ChallengeID:    ch.ID,
		ChallengerID:   ch.Challenger.ID,
		ChallengerName: ch.Challenger.Name,
		TimeControl:    ms(ch.TimeControl),
	}
}

func (r *Router) sendChallenge(ctx context.Context, connID string, v *chessdto.SendChallenge) {
	challengerID, ok := r.reg.PlayerFor(connID)
	if !ok {
		r.fail(connID, chessdto.CodeChallenge, "challenge.register_first", nil)
		return
	}
	tc, ok := r.timeControl(v.TimeControlDuration())
	if !ok {
		r.fail(connID, chessdto.CodeTimeControl, "queue.bad_time_control", map[string]string{"Minutes": minutes(v.TimeControlDuration())})
		return
	}
	targetConn, online := r.reg.ConnFor(v.FriendID)
	if !online {
		r.fail(connID, chessdto.CodeChallenge, "challenge.offline", map[string]string{"Name": v.FriendID})
		return
	}

	challenger := domain.Player{ID: challengerID, Name: v.ChallengerName}
	ch, err := r.challenges.CreateChallenge(challenger, v.FriendID, pvp.ParseColorChoice(v.Color), tc)
	switch {
	case errors.Is(err, pvp.ErrSelfChallenge):
		r.fail(connID, chessdto.CodeChallenge, "challenge.self", nil)
		return
	case errors.Is(err, pvp.ErrAlreadyPending):
		r.fail(connID, chessdto.CodeChallenge, "challenge.pending", map[string]string{"Name": v.FriendID})
		return
	case err != nil:
		r.fail(connID, chessdto.CodeChallenge, "challenge.not_found", nil)
		return
	}

	obslog.L().Info("challenge_send",
		zap.String("challenge_id", ch.ID),
		zap.String("challenger_id", challengerID),
		zap.String("target_id", v.FriendID),
		zap.Duration("time_control", tc),
		zap.String("color", string(ch.Color)),
	)
	r.send(targetConn, challengeReceived(ch))
	r.send(connID, chessdto.ChallengeSent{ChallengeID: ch.ID, FriendID: v.FriendID})
}

// acceptChallenge starts a casual match straight away; challenges never touch the queue.
func (r *Router) acceptChallenge(ctx context.Context, connID string, v *chessdto.AcceptChallenge) {
	accepterID, ok := r.reg.PlayerFor(connID)
	if !ok {
		r.fail(connID, chessdto.CodeChallenge, "challenge.register_first", nil)
		return
	}
	ch, err := r.challenges.Accept(v.ChallengeID, accepterID)
	if err != nil {
		r.fail(connID, chessdto.CodeChallenge, "challenge.not_found", nil)
		return
	}
	challengerConn, online := r.reg.ConnFor(ch.Challenger.ID)
	if !online {
		r.fail(connID, chessdto.CodeChallenge, "challenge.offline", map[string]string{"Name": ch.Challenger.Name})
		return
	}

	challenger := ch.Challenger
	challenger.ConnID = challengerConn
	challenger.Rating = r.storedRating(ctx, challenger.ID)
	name := v.AccepterName
	if name == "" {
		name = accepterID
	}
	accepter := domain.Player{ID: accepterID, Name: name, Rating: r.storedRating(ctx, accepterID), ConnID: connID}

	var m *match.Match
	if white, black, fixed := ch.Sides(accepter); fixed {
		m, err = r.reg.CreateMatchWithSides(white, black, ch.TimeControl, false)
	} else {
		m, err = r.reg.CreateMatch(challenger, accepter, ch.TimeControl, false)
	}
	if err != nil {
		if !errors.Is(err, registry.ErrPlayerBusy) {
			r.fail(connID, chessdto.CodeChallenge, "challenge.not_found", nil)
			return
		}
		busyName := challenger.Name
		if _, busy := r.reg.MatchOfPlayer(accepterID); busy {
			busyName = name
		}
		r.fail(connID, chessdto.CodePlayerBusy, "route.player_busy", map[string]string{"Name": busyName})
		return
	}

	// both players leave the queue if they were waiting in it
	left := r.queue.Dequeue(challenger.ID)
	if r.queue.Dequeue(accepterID) || left {
		r.broadcastQueue()
	}
	obslog.L().Info("challenge_accept", zap.String("challenge_id", ch.ID), zap.String("match_id", m.ID()))
	r.startMatch(ctx, m)
}

func (r *Router) declineChallenge(connID string, v *chessdto.DeclineChallenge) {
	declinerID, ok := r.reg.PlayerFor(connID)
	if !ok {
		r.fail(connID, chessdto.CodeChallenge, "challenge.register_first", nil)
		return
	}
	ch, err := r.challenges.Decline(v.ChallengeID, declinerID)
	if err != nil {
		r.fail(connID, chessdto.CodeChallenge, "challenge.not_found", nil)
		return
	}
	name := v.DeclinerName
	if name == "" {
		name = declinerID
	}
	obslog.L().Info("challenge_decline", zap.String("challenge_id", ch.ID), zap.String("player_id", declinerID))
	r.sendToPlayer(ch.Challenger.ID, chessdto.ChallengeDeclined{
		ChallengeID: ch.ID,
		Message:     r.msgs.Text("challenge.declined", map[string]string{"Name": name}),
	})
}
