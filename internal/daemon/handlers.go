package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/orchestrator"
)

var errGraphStoreDisabled = errors.New("dependency graph store is disabled")

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiResponse{OK: false, Error: err.Error()})
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: data})
}

// handleHealth answers liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]interface{}{
		"status":    "ok",
		"uptime":    s.uptime().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type scheduleJobRequest struct {
	JobTableName string `json:"jobTableName"`
}

// handleScheduleJob implements §6.1 ScheduleJob(jobId, jobTableName?).
func (s *Server) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	var req scheduleJobRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := s.jobOrch.ScheduleJob(r.Context(), jobID, req.JobTableName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, result)
}

// handleRecalculateAll implements §6.1 RecalculateAll.
func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.batch.RecalculateAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, result)
}

type reorderDayRequest struct {
	Date                 string   `json:"date"`
	StageID              string   `json:"stageId"`
	DesiredInstanceOrder []string `json:"stageInstanceIds"`
	ShiftStart           string   `json:"shiftStart"`
	ShiftEnd             string   `json:"shiftEnd"`
	DayWideReorder       bool     `json:"dayWideReorder"`
	GroupingType         string   `json:"groupingType"`
}

// handleReorderDay implements §6.1 ReorderDay.
func (s *Server) handleReorderDay(w http.ResponseWriter, r *http.Request) {
	var req reorderDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var opts orchestrator.ReorderOptions
	if req.ShiftStart != "" {
		start, perr := time.Parse("15:04", req.ShiftStart)
		if perr != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parsing shiftStart: %w", perr))
			return
		}
		opts.ShiftStart = start
	}
	if req.ShiftEnd != "" {
		end, perr := time.Parse("15:04", req.ShiftEnd)
		if perr != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parsing shiftEnd: %w", perr))
			return
		}
		opts.ShiftEnd = end
	}
	opts.DayWideReorder = req.DayWideReorder
	opts.GroupingType = orchestrator.GroupingType(req.GroupingType)

	if err := s.reorderer.ReorderDay(r.Context(), req.StageID, date, req.DesiredInstanceOrder, opts); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrStagesNotAllOnDate) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeOK(w, map[string]interface{}{"updatedStages": len(req.DesiredInstanceOrder)})
}

// handleRecalcTentativeDueDates implements §6.1 RecalcTentativeDueDates.
func (s *Server) handleRecalcTentativeDueDates(w http.ResponseWriter, r *http.Request) {
	if err := s.tentative.RecalcTentativeDueDates(r.Context(), s.minutesSrc); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, map[string]interface{}{"triggered": true})
}

type manualRescheduleRequest struct {
	TargetDate string `json:"targetDate"`
	StageID    string `json:"stageId"`
}

// handleManualReschedule implements §6.1 ManualRescheduleStage.
func (s *Server) handleManualReschedule(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instanceId"]

	var req manualRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	targetDate, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.manualResched.Reschedule(r.Context(), instanceID, targetDate, req.StageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, result)
}

// handleDependencyStatus answers whether a stage instance's direct
// predecessors have all completed, and how deep its blocking chain runs,
// from the optional dependency graph store. Returns 404 when graphstore is
// disabled rather than a degraded result, so callers can distinguish
// "not blocked" from "analytics unavailable".
func (s *Server) handleDependencyStatus(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusNotFound, errGraphStoreDisabled)
		return
	}
	instanceID := mux.Vars(r)["instanceId"]

	canStart, err := s.graph.CanStageStart(r.Context(), instanceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	depth, err := s.graph.BlockingChainDepth(r.Context(), instanceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"canStart":          canStart,
		"blockingChainDepth": depth,
	})
}
