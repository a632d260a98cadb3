package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) Queue(w http.ResponseWriter, r *http.Request) {
	byTC := make(map[int64]int)
	for tc, n := range a.live.QueueByTimeControl() {
		byTC[tc.Milliseconds()] = n
	}
	writeJSON(w, http.StatusOK, chessdto.QueueView{
		Size:         a.live.QueueSize(),
		Matches:      a.live.ActiveMatches(),
		TimeControls: byTC,
	})
}

// Match prefers the in-process match and falls back to the Redis mirror.
func (a *API) Match(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if snap, ok := a.live.MatchSnapshot(id); ok {
		writeJSON(w, http.StatusOK, session.StateViewOf(snap))
		return
	}
	if a.snaps != nil {
		snap, err := a.snaps.Load(r.Context(), id)
		if err != nil {
			obslog.L().Warn("api_snapshot_error", zap.String("match_id", id), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "snapshot store unavailable")
			return
		}
		if snap != nil {
			writeJSON(w, http.StatusOK, session.StateViewOf(*snap))
			return
		}
	}
	writeError(w, http.StatusNotFound, chessdto.CodeMatchNotFound, "match not found")
}

func (a *API) Player(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	ctx := r.Context()

	view := chessdto.ProfileView{PlayerID: id, Recent: []chessdto.MatchRecordView{}}
	prof, err := a.repo.Profile(ctx, id)
	if err != nil {
		obslog.L().Warn("api_profile_error", zap.String("player_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "rating store unavailable")
		return
	}
	if prof != nil {
		view.Rating = prof.Rating
		view.GamesPlayed = prof.GamesPlayed
		updated := prof.UpdatedAt
		view.UpdatedAt = &updated
	} else if view.Rating, err = a.repo.Rating(ctx, id); err != nil {
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "rating store unavailable")
		return
	}

	recs, err := a.repo.RecentMatches(ctx, id, a.recent)
	if err != nil {
		obslog.L().Warn("api_history_error", zap.String("player_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "match history unavailable")
		return
	}
	for _, rec := range recs {
		view.Recent = append(view.Recent, session.RecordView(rec))
	}

	// the live game is optional; a Redis outage only hides it
	if a.snaps != nil {
		snap, err := a.snaps.ActiveByPlayer(ctx, id)
		switch {
		case err != nil:
			obslog.L().Warn("api_active_match_error", zap.String("player_id", id), zap.Error(err))
		case snap != nil:
			active := session.StateViewOf(*snap)
			view.ActiveMatch = &active
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, chessdto.Error{Code: code, Message: msg})
}
