package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// handleListDeals handles GET /v1/companies/{company}/deals.
func (s *DealServer) handleListDeals(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "company")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	q := r.URL.Query()
	filter := model.DealFilter{
		CompanyID: companyID,
		Search:    strings.TrimSpace(q.Get("search")),
	}
	if v := q.Get("stage"); v != "" {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Stage = append(filter.Stage, st)
			}
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	deals, total, err := s.store.ListDeals(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to list deals")
		return
	}

	// Ensure deals is never null in JSON output.
	if deals == nil {
		deals = []*model.Deal{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deals": deals,
		"total": total,
	})
}

// handleListStages handles GET /v1/companies/{company}/stages.
func (s *DealServer) handleListStages(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "company")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	stages, err := s.listStages(r.Context(), companyID, all)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to list stages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// handleGetDeal handles GET /v1/deals/{id}.
func (s *DealServer) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	deal, err := s.getDeal(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to get deal")
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleUpdateStage handles PATCH /v1/deals/{id}/stage.
func (s *DealServer) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	var in moveStageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deal, err := s.moveDeal(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to move deal")
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleGetStageHistory handles GET /v1/deals/{id}/history.
func (s *DealServer) handleGetStageHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	if _, err := s.getDeal(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err, "failed to get deal")
		return
	}

	changes, err := s.store.GetStageHistory(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to get stage history")
		return
	}
	if changes == nil {
		changes = []*model.StageChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}
