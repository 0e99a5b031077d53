package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sells-group/costdb/internal/insight"
	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/internal/pipeline"
	"github.com/sells-group/costdb/internal/store"
)

type healthResponse struct {
	Status    string `json:"status"`
	RunActive bool   `json:"run_active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{Status: "ok", RunActive: s.guard != nil && s.guard.Active()})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	f, err := outputFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.store.ListStandardizedItems(r.Context(), f)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []model.StandardizedItem{}
	}
	render.JSON(w, r, items)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	f, err := outputFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	costs, err := s.store.ListCostAnalytics(r.Context(), f)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if costs == nil {
		costs = []model.CostAggregate{}
	}
	render.JSON(w, r, costs)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	f, err := outputFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	anomalies, err := s.store.ListAnomalies(r.Context(), f)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if anomalies == nil {
		anomalies = []model.AnomalyRecord{}
	}
	render.JSON(w, r, anomalies)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	render.JSON(w, r, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

type startRunResponse struct {
	Status string         `json:"status"`
	Input  model.RunInput `json:"input"`
}

// handleStartRun starts a run against the configured inputs. Inputs are not
// taken from the request.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.guard == nil {
		respondError(w, r, http.StatusServiceUnavailable, "runs are disabled")
		return
	}
	err := s.guard.Start(s.runCtx, s.input)
	if errors.Is(err, pipeline.ErrRunActive) {
		respondError(w, r, http.StatusConflict, "a run is already in progress")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, startRunResponse{Status: "accepted", Input: s.input})
}

func (s *Server) handleRunHealth(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "lookback_hours")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if hours == 0 {
		hours = 24
	}
	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}

// handleAlerts returns the alerts raised by the latest monitoring check.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := []monitoring.Alert{}
	if s.checker != nil {
		alerts = append(alerts, s.checker.Last()...)
	}
	render.JSON(w, r, alerts)
}

type insightRequest struct {
	Text string `json:"text"`
}

type insightResponse struct {
	Insights insight.Insights `json:"insights"`
	Bullets  []string         `json:"bullets"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, r, http.StatusBadRequest, "text is required")
		return
	}
	in := s.insights.Analyze(req.Text)
	bullets := in.Bullets()
	if bullets == nil {
		bullets = []string{}
	}
	render.JSON(w, r, insightResponse{Insights: in, Bullets: bullets})
}
