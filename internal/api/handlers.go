package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/breathe/internal/app/engine"
	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Observations ───────────────────────────────────────────────────────────

func (s *Server) handleLogObservation(w http.ResponseWriter, r *http.Request) {
	var in engine.ObservationInput
	if err := decode(w, r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.engine.LogObservation(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	obs, err := s.engine.ListObservations(r.Context(), userFrom(r.Context()),
		r.URL.Query().Get("category"), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

func (s *Server) handleLatestObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := s.engine.LatestObservations(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

// ─── Challenges ─────────────────────────────────────────────────────────────

type joinRequest struct {
	ChallengeTypeID string `json:"challenge_type_id"`
	Mode            string `json:"mode,omitempty"`
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.engine.JoinChallenge(r.Context(), userFrom(r.Context()), req.ChallengeTypeID, req.Mode)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRestartChallenge(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RestartChallenge(r.Context(), userFrom(r.Context()), chi.URLParam(r, "typeID"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.ListChallenges(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": views})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetChallenge(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type statusFunc func(ctx context.Context, userID, id string) (engine.StatusResult, error)

// handleChallengeStatus serves pause, resume, cancel, and complete.
func (s *Server) handleChallengeStatus(op statusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := op(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type checkRequest struct {
	CurrentValue *float64 `json:"current_value,omitempty"`
}

func (s *Server) handleCheckMilestones(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	// The body is optional.
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
	}
	res, err := s.engine.CheckMilestones(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), req.CurrentValue)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Reference Data ─────────────────────────────────────────────────────────

func (s *Server) handleListChallengeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.engine.ListChallengeTypes(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge_types": types})
}

type categoryView struct {
	Key    string                `json:"key"`
	Label  string                `json:"label"`
	Unit   string                `json:"unit,omitempty"`
	Kind   domain.CategoryKind   `json:"kind"`
	Schema domain.CategorySchema `json:"schema"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.engine.Schema().Categories()
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = categoryView{Key: c.Key, Label: c.Label, Unit: c.Unit, Kind: c.Kind(), Schema: c.Schema}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// ─── Rewards ────────────────────────────────────────────────────────────────

func (s *Server) handleAwardActivity(w http.ResponseWriter, r *http.Request) {
	var in engine.ActivityInput
	if err := decode(w, r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.engine.AwardActivityPoints(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type uploadRequest struct {
	UploadType string `json:"upload_type"`
	Points     *int64 `json:"points,omitempty"`
}

func (s *Server) handleAwardUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.engine.AwardUploadPoints(r.Context(), userFrom(r.Context()), req.UploadType, req.Points)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	view, err := s.engine.GetPoints(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListAchievements(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": list})
}
