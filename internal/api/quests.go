package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/catalog"
)

// ─── Catalog Endpoints ──────────────────────────────────────────────────────
//
// GET /api/quests       - every quest
// GET /api/quests/{id}  - one quest
// GET /api/actions      - every action template

// templateView is the JSON form of a catalog template.
type templateView struct {
	ID     string        `json:"id"`
	Unlock string        `json:"unlock,omitempty"`
	Action domain.Action `json:"action"`
}

func toTemplateViews(ts []catalog.Template) []templateView {
	out := make([]templateView, len(ts))
	for i, t := range ts {
		out[i] = templateView{ID: t.ID, Unlock: t.UnlockExpr(), Action: t.Action}
	}
	return out
}

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quests": s.d.Catalog.Quests(),
	})
}

func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	q, err := s.d.Catalog.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": toTemplateViews(s.d.Catalog.Actions()),
	})
}
