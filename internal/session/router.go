package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/lifecycle"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/pvp"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/watchdog"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

// Notifier is the push side of the transport.
type Notifier interface {
	lifecycle.Notifier
	Broadcast(ev chessdto.Outbound)
}

// SnapshotStore caches live match state outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, snap match.Snapshot) error
	Delete(ctx context.Context, matchID string, playerIDs ...string) error
}

type Config struct {
	DefaultTimeControl  time.Duration
	AllowedTimeControls []time.Duration
	Retry               lifecycle.RetryPolicy
}

// Router dispatches inbound events to the queue, the registry and the matches,
// and fans results out to the participants.
type Router struct {
	cfg        Config
	queue      *matchmaking.Queue
	reg        *registry.Registry
	repo       store.Repository
	notifier   Notifier
	snaps      SnapshotStore
	msgs       *msgcat.Catalog
	challenges *pvp.Manager
	dog        *watchdog.Watchdog
	life       *lifecycle.Coordinator

	// gate is held shared by every inbound path and exclusively by Drain.
	gate     sync.RWMutex
	draining bool
}

type Option func(*Router)

func WithSnapshots(s SnapshotStore) Option    { return func(r *Router) { r.snaps = s } }
func WithMessages(m *msgcat.Catalog) Option   { return func(r *Router) { r.msgs = m } }
func WithChallenges(m *pvp.Manager) Option    { return func(r *Router) { r.challenges = m } }
func WithQueue(q *matchmaking.Queue) Option   { return func(r *Router) { r.queue = q } }
func WithRegistry(g *registry.Registry) Option { return func(r *Router) { r.reg = g } }

func New(repo store.Repository, notifier Notifier, cfg Config, opts ...Option) *Router {
	if cfg.DefaultTimeControl <= 0 {
		cfg.DefaultTimeControl = 10 * time.Minute
	}
	r := &Router{cfg: cfg, repo: repo, notifier: notifier}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = matchmaking.NewQueue()
	}
	if r.reg == nil {
		r.reg = registry.New()
	}
	if r.challenges == nil {
		r.challenges = pvp.NewManager()
	}
	if r.msgs == nil {
		r.msgs = msgcat.MustDefault()
	}
	r.dog = watchdog.New(r.onDeadline)

	lopts := []lifecycle.Option{
		lifecycle.WithWatchdog(r.dog),
		lifecycle.WithMessages(r.msgs),
		lifecycle.WithRetry(cfg.Retry),
	}
	if r.snaps != nil {
		lopts = append(lopts, lifecycle.WithSnapshots(r.snaps))
	}
	r.life = lifecycle.New(r.reg, repo, notifier, lopts...)
	return r
}

func (r *Router) Registry() *registry.Registry { return r.reg }
func (r *Router) Queue() *matchmaking.Queue     { return r.queue }

func (r *Router) QueueSize() int     { return r.queue.Size() }
func (r *Router) ActiveMatches() int { return r.reg.Count() }

// QueueByTimeControl counts waiting players per time control.
func (r *Router) QueueByTimeControl() map[time.Duration]int {
	out := make(map[time.Duration]int)
	for _, e := range r.queue.Entries() {
		out[e.TimeControl]++
	}
	return out
}

// MatchSnapshot returns the live state of a registered match.
func (r *Router) MatchSnapshot(matchID string) (match.Snapshot, bool) {
	m, ok := r.reg.Match(matchID)
	if !ok {
		return match.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// Drain puts the router into shutdown mode and cancels every live match.
// It waits for in-flight events, then stops the deadline timers. Cancelled matches
// are told to both players, are neither rated nor recorded, and lose their snapshot.
// Once draining, inbound events are refused and a disconnect no longer forfeits.
// It returns how many matches were cancelled.
func (r *Router) Drain(ctx context.Context) int {
	r.gate.Lock()
	if r.draining {
		r.gate.Unlock()
		return 0
	}
	r.draining = true
	r.gate.Unlock()
	r.dog.Stop()

	cancelled := 0
	for _, m := range r.reg.Active() {
		if !r.reg.Teardown(m.ID()) {
			continue
		}
		cancelled++
		snap := m.Snapshot()
		ev := chessdto.Error{
			Code:    chessdto.CodeUnavailable,
			Message: r.msgs.Text("route.match_cancelled", map[string]string{"MatchID": snap.ID}),
		}
		r.sendToPlayer(snap.White.ID, ev)
		r.sendToPlayer(snap.Black.ID, ev)
		if r.snaps != nil {
			if err := r.snaps.Delete(ctx, snap.ID, snap.White.ID, snap.Black.ID); err != nil {
				obslog.L().Warn("snapshot_delete_error", zap.String("match_id", snap.ID), zap.Error(err))
			}
		}
		obslog.L().Info("match_cancel", zap.String("match_id", snap.ID), zap.String("cause", "shutdown"))
	}
	obslog.L().Info("router_drain", zap.Int("cancelled", cancelled), zap.Int("queue_size", r.queue.Size()))
	return cancelled
}

// Draining reports whether Drain has been called.
func (r *Router) Draining() bool {
	r.gate.RLock()
	defer r.gate.RUnlock()
	return r.draining
}

// Close stops every deadline timer and waits for pending persistence retries.
func (r *Router) Close(ctx context.Context) error {
	r.dog.Stop()
	return r.life.Wait(ctx)
}

// Connect greets a new connection with the current queue size.
func (r *Router) Connect(connID string) {
	r.send(connID, chessdto.QueueUpdate{QueueSize: r.queue.Size()})
}

// Handle dispatches one decoded inbound event from connID.
func (r *Router) Handle(ctx context.Context, connID string, in chessdto.Inbound) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	if r.draining {
		if _, gone := in.(*chessdto.Disconnect); !gone {
			r.fail(connID, chessdto.CodeUnavailable, "route.draining", nil)
			return
		}
	}
	r.dispatch(ctx, connID, in)
}

func (r *Router) dispatch(ctx context.Context, connID string, in chessdto.Inbound) {
	switch v := in.(type) {
	case *chessdto.JoinQueue:
		r.joinQueue(ctx, connID, v)
	case *chessdto.LeaveQueue:
		r.leaveQueue(connID, v)
	case *chessdto.MakeMove, *chessdto.Resign:
		r.routeAction(ctx, connID, in)
	case *chessdto.Disconnect:
		// a client may only report its own connection as gone
		if v.ConnectionID != connID {
			r.fail(connID, chessdto.CodeMalformed, "route.malformed", map[string]string{"Event": v.EventName()})
			return
		}
		r.disconnect(ctx, connID)
	case *chessdto.RegisterUser:
		r.registerUser(connID, v)
	case *chessdto.GetQueueSize:
		r.send(connID, chessdto.QueueUpdate{QueueSize: r.queue.Size()})
	case *chessdto.JoinGame:
		r.joinGame(ctx, connID, v)
	case *chessdto.SendChallenge:
		r.sendChallenge(ctx, connID, v)
	case *chessdto.AcceptChallenge:
		r.acceptChallenge(ctx, connID, v)
	case *chessdto.DeclineChallenge:
		r.declineChallenge(connID, v)
	default:
		r.fail(connID, chessdto.CodeUnknownEvent, "route.unknown_event", map[string]string{"Event": fmt.Sprintf("%T", in)})
	}
}

// HandleRaw decodes a frame and dispatches it, answering decode failures with an error event.
func (r *Router) HandleRaw(ctx context.Context, connID string, raw []byte) {
	in, err := chessdto.Decode(raw)
	if err != nil {
		code, key := chessdto.CodeMalformed, "route.malformed"
		if errors.Is(err, chessdto.ErrUnknownEvent) {
			code, key = chessdto.CodeUnknownEvent, "route.unknown_event"
		}
		obslog.L().Debug("route_decode_error", zap.String("conn_id", connID), zap.Error(err))
		r.fail(connID, code, key, map[string]string{"Event": eventOf(raw)})
		return
	}
	r.Handle(ctx, connID, in)
}

func (r *Router) joinQueue(ctx context.Context, connID string, v *chessdto.JoinQueue) {
	tc, ok := r.timeControl(v.TimeControlDuration())
	if !ok {
		r.fail(connID, chessdto.CodeTimeControl, "queue.bad_time_control", map[string]string{"Minutes": minutes(v.TimeControlDuration())})
		return
	}
	r.reg.RegisterConnection(connID, v.PlayerID)
	if _, busy := r.reg.MatchOfPlayer(v.PlayerID); busy {
		r.fail(connID, chessdto.CodePlayerBusy, "route.player_busy", map[string]string{"Name": v.Name})
		return
	}

	p := domain.Player{ID: v.PlayerID, Name: v.Name, Rating: v.Rating, ConnID: connID}
	if p.Rating <= 0 {
		p.Rating = r.storedRating(ctx, p.ID)
	}
	if !r.queue.Enqueue(p, tc) {
		r.fail(connID, chessdto.CodeAlreadyQueued, "queue.already_queued", nil)
		return
	}
	pos, _ := r.queue.Position(p.ID)
	size := r.queue.Size()
	obslog.L().Info("queue_join",
		zap.String("player_id", p.ID),
		zap.Int("rating", p.Rating),
		zap.Duration("time_control", tc),
		zap.Int("position", pos),
		zap.Int("queue_size", size),
	)
	r.send(connID, chessdto.QueueJoined{Position: pos, QueueSize: size})
	r.broadcastQueue()

	r.drainPairs(ctx)
}

// drainPairs turns every compatible pair currently queued into a ranked match.
func (r *Router) drainPairs(ctx context.Context) {
	paired := false
	for {
		pair, ok := r.queue.TryPair()
		if !ok {
			break
		}
		paired = true
		m, err := r.reg.CreateMatch(pair.A.Player, pair.B.Player, pair.A.TimeControl, true)
		if err != nil {
			obslog.L().Warn("match_create_error",
				zap.String("player_a", pair.A.Player.ID),
				zap.String("player_b", pair.B.Player.ID),
				zap.Error(err),
			)
			for _, e := range []matchmaking.Entry{pair.A, pair.B} {
				if _, busy := r.reg.MatchOfPlayer(e.Player.ID); !busy {
					r.queue.Enqueue(e.Player, e.TimeControl)
				}
			}
			continue
		}
		r.startMatch(ctx, m)
	}
	if paired {
		r.broadcastQueue()
	}
}

func (r *Router) leaveQueue(connID string, v *chessdto.LeaveQueue) {
	owner, ok := r.reg.PlayerFor(connID)
	if !ok || owner != v.PlayerID {
		r.fail(connID, chessdto.CodeNotQueued, "queue.not_queued", nil)
		return
	}
	if !r.queue.Dequeue(v.PlayerID) {
		r.fail(connID, chessdto.CodeNotQueued, "queue.not_queued", nil)
		return
	}
	obslog.L().Info("queue_leave", zap.String("player_id", v.PlayerID), zap.Int("queue_size", r.queue.Size()))
	r.send(connID, chessdto.QueueLeft{Message: r.msgs.Text("queue.left", nil)})
	r.broadcastQueue()
}

// startMatch activates m and tells both players.
func (r *Router) startMatch(ctx context.Context, m *match.Match) {
	if err := m.Start(); err != nil {
		obslog.L().Warn("match_start_error", zap.String("match_id", m.ID()), zap.Error(err))
		return
	}
	snap := m.Snapshot()
	obslog.L().Info("match_create",
		zap.String("match_id", snap.ID),
		zap.String("white", snap.White.ID),
		zap.String("black", snap.Black.ID),
		zap.Duration("time_control", snap.TimeControl),
		zap.Bool("ranked", snap.Ranked),
	)
	for _, side := range []domain.Side{domain.SideWhite, domain.SideBlack} {
		me, opp := snap.Player(side), snap.Player(side.Opposite())
		r.sendToPlayer(me.ID, chessdto.MatchFound{MatchID: snap.ID, Opponent: playerView(opp), Color: string(side)})
	}
	start := GameStartOf(snap)
	r.sendToPlayer(snap.White.ID, start)
	r.sendToPlayer(snap.Black.ID, start)

	// a socket that closed while the pair was being formed is never bound
	for _, p := range []domain.Player{snap.White, snap.Black} {
		if _, online := r.reg.ConnFor(p.ID); online {
			continue
		}
		if out, err := m.Forfeit(p.ID, domain.ReasonDisconnect); err == nil {
			obslog.L().Info("match_forfeit",
				zap.String("match_id", m.ID()),
				zap.String("player_id", p.ID),
				zap.String("winner", string(out.Winner)),
				zap.String("cause", "gone_before_start"),
			)
			r.finalize(ctx, m)
			return
		}
	}

	r.arm(m)
	r.saveSnapshot(ctx, snap)
}

// RouteAction resolves connID to its match and applies a move or a resignation.
func (r *Router) RouteAction(ctx context.Context, connID string, action chessdto.Inbound) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	if r.draining {
		r.fail(connID, chessdto.CodeUnavailable, "route.draining", nil)
		return
	}
	r.routeAction(ctx, connID, action)
}

func (r *Router) routeAction(ctx context.Context, connID string, action chessdto.Inbound) {
	var matchID string
	switch v := action.(type) {
	case *chessdto.MakeMove:
		matchID = v.MatchID
	case *chessdto.Resign:
		matchID = v.MatchID
	default:
		r.fail(connID, chessdto.CodeUnknownEvent, "route.unknown_event", map[string]string{"Event": action.EventName()})
		return
	}

	m, ok := r.reg.Lookup(connID)
	if !ok {
		r.fail(connID, chessdto.CodeNoActiveMatch, "route.no_active_match", nil)
		return
	}
	if m.ID() != strings.TrimSpace(matchID) {
		r.fail(connID, chessdto.CodeMatchNotFound, "route.match_not_found", map[string]string{"MatchID": matchID})
		return
	}
	playerID, _ := r.reg.PlayerFor(connID)

	switch v := action.(type) {
	case *chessdto.MakeMove:
		r.makeMove(ctx, connID, playerID, m, v)
	case *chessdto.Resign:
		r.resign(ctx, connID, playerID, m)
	}
}

func (r *Router) makeMove(ctx context.Context, connID, playerID string, m *match.Match, v *chessdto.MakeMove) {
	from, to := chessdto.NormalizeSquare(v.From), chessdto.NormalizeSquare(v.To)
	res, err := m.ApplyMove(playerID, from, to, strings.ToLower(strings.TrimSpace(v.Promotion)))
	if err != nil {
		re, ok := match.AsRejected(err)
		if !ok {
			obslog.L().Error("match_move_error", zap.String("match_id", m.ID()), zap.Error(err))
			r.fail(connID, chessdto.CodeInternal, "route.malformed", map[string]string{"Event": v.EventName()})
			return
		}
		obslog.L().Debug("match_move_rejected",
			zap.String("match_id", m.ID()),
			zap.String("player_id", playerID),
			zap.String("code", re.Code),
			zap.String("move", from+to),
		)
		r.send(connID, chessdto.InvalidMove{
			MatchID: m.ID(),
			Reason:  re.Code,
			Message: r.msgs.Text("reject."+re.Code, map[string]string{"From": from, "To": to}),
		})
		if res.GameOver {
			r.finalize(ctx, m)
		}
		return
	}

	obslog.L().Debug("match_move",
		zap.String("match_id", m.ID()),
		zap.String("player_id", playerID),
		zap.String("uci", res.Move.UCI),
		zap.String("san", res.Move.SAN),
		zap.Duration("elapsed", res.Move.Elapsed),
	)
	ev := chessdto.MoveMade{
		MatchID:   m.ID(),
		From:      res.Move.From,
		To:        res.Move.To,
		Promotion: res.Move.Promotion,
		SAN:       res.Move.SAN,
		UCI:       res.Move.UCI,
		Position:  res.FEN,
		Turn:      string(res.Turn),
		Clocks:    clocksView(res.Clocks),
	}
	r.sendToPlayer(m.White().ID, ev)
	r.sendToPlayer(m.Black().ID, ev)

	if res.GameOver {
		r.finalize(ctx, m)
		return
	}
	r.arm(m)
	r.saveSnapshot(ctx, m.Snapshot())
}

func (r *Router) resign(ctx context.Context, connID, playerID string, m *match.Match) {
	out, err := m.Resign(playerID)
	if err != nil {
		code := chessdto.CodeInternal
		if re, ok := match.AsRejected(err); ok {
			code = re.Code
		}
		r.fail(connID, code, "reject."+code, nil)
		return
	}
	obslog.L().Info("match_resign",
		zap.String("match_id", m.ID()),
		zap.String("player_id", playerID),
		zap.String("winner", string(out.Winner)),
	)
	r.finalize(ctx, m)
}

// Disconnect drops connID from the queue, forfeits its active match and forgets it.
// While draining the match is left to Drain and nothing is forfeited.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	r.disconnect(ctx, connID)
}

func (r *Router) disconnect(ctx context.Context, connID string) {
	if p, ok := r.queue.DequeueByConn(connID); ok {
		obslog.L().Info("queue_leave", zap.String("player_id", p.ID), zap.String("cause", "disconnect"))
		r.broadcastQueue()
	}

	playerID, bound := r.reg.PlayerFor(connID)
	if m, ok := r.reg.Lookup(connID); ok && bound && !r.draining {
		if out, err := m.Forfeit(playerID, domain.ReasonDisconnect); err == nil {
			obslog.L().Info("match_forfeit",
				zap.String("match_id", m.ID()),
				zap.String("player_id", playerID),
				zap.String("winner", string(out.Winner)),
			)
			r.finalize(ctx, m)
		}
	}
	if bound {
		for _, ch := range r.challenges.DropPlayer(playerID) {
			obslog.L().Debug("challenge_withdrawn", zap.String("challenge_id", ch.ID), zap.String("player_id", playerID))
		}
	}
	r.reg.RemoveConnection(connID)
	obslog.L().Info("conn_disconnect", zap.String("conn_id", connID), zap.String("player_id", playerID))
}

func (r *Router) registerUser(connID string, v *chessdto.RegisterUser) {
	r.reg.RegisterConnection(connID, v.PlayerID)
	obslog.L().Debug("user_register", zap.String("conn_id", connID), zap.String("player_id", v.PlayerID))
	for _, ch := range r.challenges.Pending(v.PlayerID) {
		r.send(connID, challengeReceived(ch))
	}
}

// joinGame rebinds connID to a running match and resends its full state.
func (r *Router) joinGame(ctx context.Context, connID string, v *chessdto.JoinGame) {
	playerID, ok := r.reg.PlayerFor(connID)
	if !ok {
		r.fail(connID, chessdto.CodeNoActiveMatch, "route.no_active_match", nil)
		return
	}
	m, ok := r.reg.Match(v.MatchID)
	if !ok {
		r.fail(connID, chessdto.CodeMatchNotFound, "route.match_not_found", map[string]string{"MatchID": v.MatchID})
		return
	}
	if _, member := m.SideOf(playerID); !member {
		r.fail(connID, match.CodeNotInMatch, "reject."+match.CodeNotInMatch, nil)
		return
	}
	r.reg.RegisterConnection(connID, playerID)
	obslog.L().Info("match_rejoin", zap.String("match_id", m.ID()), zap.String("player_id", playerID))
	r.send(connID, GameStartOf(m.Snapshot()))
}

// onDeadline is the watchdog callback. A late timer finds the clock recharged and re-arms.
func (r *Router) onDeadline(matchID string) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	if r.draining {
		return
	}
	m, ok := r.reg.Match(matchID)
	if !ok {
		return
	}
	if out, expired := m.TimeoutIfExpired(); expired {
		obslog.L().Info("match_timeout", zap.String("match_id", matchID), zap.String("winner", string(out.Winner)))
		r.finalize(context.Background(), m)
		return
	}
	r.arm(m)
}

func (r *Router) arm(m *match.Match) {
	if deadline, ok := m.Deadline(); ok {
		r.dog.Arm(m.ID(), deadline)
		return
	}
	r.dog.Disarm(m.ID())
}

func (r *Router) finalize(ctx context.Context, m *match.Match) {
	if _, err := r.life.Finalize(ctx, m); err != nil && !errors.Is(err, lifecycle.ErrAlreadyFinalized) {
		obslog.L().Error("lifecycle_finalize_error", zap.String("match_id", m.ID()), zap.Error(err))
	}
}

func (r *Router) saveSnapshot(ctx context.Context, snap match.Snapshot) {
	if r.snaps == nil {
		return
	}
	if err := r.snaps.Save(ctx, snap); err != nil {
		obslog.L().Warn("snapshot_save_error", zap.String("match_id", snap.ID), zap.Error(err))
	}
}

func (r *Router) storedRating(ctx context.Context, playerID string) int {
	if r.repo == nil {
		return rating.Default
	}
	v, err := r.repo.Rating(ctx, playerID)
	if err != nil {
		obslog.L().Warn("rating_lookup_error", zap.String("player_id", playerID), zap.Error(err))
		return rating.Default
	}
	return v
}

// timeControl checks a requested time control; zero means the default.
func (r *Router) timeControl(tc time.Duration) (time.Duration, bool) {
	if tc <= 0 {
		return r.cfg.DefaultTimeControl, true
	}
	if len(r.cfg.AllowedTimeControls) == 0 {
		return tc, true
	}
	for _, allowed := range r.cfg.AllowedTimeControls {
		if allowed == tc {
			return tc, true
		}
	}
	return 0, false
}

func (r *Router) broadcastQueue() {
	if r.notifier != nil {
		r.notifier.Broadcast(chessdto.QueueUpdate{QueueSize: r.queue.Size()})
	}
}

func (r *Router) sendToPlayer(playerID string, ev chessdto.Outbound) {
	if conn, ok := r.reg.ConnFor(playerID); ok {
		r.send(conn, ev)
	}
}

func (r *Router) send(connID string, ev chessdto.Outbound) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(connID, ev); err != nil {
		obslog.L().Debug("notify_error", zap.String("conn_id", connID), zap.String("event", ev.EventName()), zap.Error(err))
	}
}

func (r *Router) fail(connID, code, key string, data any) {
	r.send(connID, chessdto.Error{Code: code, Message: r.msgs.Text(key, data)})
}

func minutes(d time.Duration) string {
	return fmt.Sprintf("%g", d.Minutes())
}

func eventOf(raw []byte) string {
	var env chessdto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		return "message"
	}
	return env.Event
}
