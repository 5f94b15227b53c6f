package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/app/session"
	"github.com/finquest-app/finquest/internal/infra/catalog"
)

// ─── Run Endpoints ──────────────────────────────────────────────────────────
//
// POST   /api/runs                      - start a run
// GET    /api/runs                      - list runs
// GET    /api/runs/{id}                 - replay a run
// DELETE /api/runs/{id}                 - delete a run
// POST   /api/runs/{id}/choices         - choose the next batch (branches)
// PUT    /api/runs/{id}/batches/{index} - edit an earlier batch
// PUT    /api/runs/{id}/cursor          - move the cursor
// GET    /api/runs/{id}/durations       - action lifetimes
// GET    /api/runs/{id}/payouts         - capital paid out so far
// GET    /api/runs/{id}/actions         - templates unlocked at the cursor

type startRunRequest struct {
	QuestID string `json:"quest_id"`
}

type actionsRequest struct {
	Actions []catalog.Entry `json:"actions"`
}

type cursorRequest struct {
	Cursor int `json:"cursor"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QuestID == "" {
		writeError(w, http.StatusBadRequest, "quest_id is required")
		return
	}

	v, err := s.d.Sessions.Start(r.Context(), req.QuestID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.d.Sessions.List()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	type summary struct {
		ID        string `json:"id"`
		QuestID   string `json:"quest_id"`
		Steps     int    `json:"steps"`
		Cursor    int    `json:"cursor"`
		UpdatedAt string `json:"updated_at"`
	}
	out := make([]summary, len(runs))
	for i, run := range runs {
		out[i] = summary{
			ID:        run.ID,
			QuestID:   run.QuestID,
			Steps:     len(run.Batches) + 1,
			Cursor:    run.Cursor,
			UpdatedAt: run.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	v, err := s.d.Sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := s.d.Catalog.Resolve(req.Actions)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	v, err := s.d.Sessions.Choose(r.Context(), chi.URLParam(r, "id"), actions)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleEditBatch(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "batch index must be an integer")
		return
	}
	var req actionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := s.d.Catalog.Resolve(req.Actions)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	v, err := s.d.Sessions.Edit(r.Context(), chi.URLParam(r, "id"), index, actions)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.d.Sessions.Seek(r.Context(), chi.URLParam(r, "id"), req.Cursor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDurations(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"durations": toDurationViews(quest.ActionDurations(v.Quest)),
	})
}

func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": nonNilPayouts(quest.Payouts(v.Quest)),
	})
}

func (s *Server) handleAvailableActions(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	available, err := s.d.Catalog.Available(v.Quest)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cursor":  v.Quest.Cursor,
		"actions": toTemplateViews(available),
	})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*session.View, bool) {
	v, err := s.d.Sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, false
	}
	return v, true
}
