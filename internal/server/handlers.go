package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.experiments.List(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type AssignRequest struct {
	ExperimentID string `json:"experiment_id"`
	SubjectID    string `json:"subject_id"`
}

type AssignResponse struct {
	Variant string `json:"variant"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.SubjectID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	variant, err := s.engine.Assign(r.Context(), req.ExperimentID, req.SubjectID)
	if err != nil {
		s.log.Error().Err(err).Str("experiment", req.ExperimentID).Msg("assign failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AssignResponse{Variant: variant})
}

type TrackRequest struct {
	ExperimentID string          `json:"experiment_id"`
	SubjectID    string          `json:"subject_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// handleTrack is fire-and-forget from the caller's perspective: engine
// failures are logged and still answered with 204 so a flaky reporting
// path never breaks the calling page.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.SubjectID == "" || req.Event == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.engine.Track(r.Context(), req.ExperimentID, req.SubjectID, req.Event, req.Payload); err != nil {
		s.log.Error().Err(err).Str("experiment", req.ExperimentID).Str("event", req.Event).Msg("track failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("experiment")
	if id == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}

	report, err := s.results.Analyze(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Experiment not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("experiment", id).Msg("analyze failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, report)
}

type ExperimentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExperiments(w, r)
	case http.MethodPost:
		s.createExperiment(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.experiments.List(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := []ExperimentResponse{}
	for _, exp := range experiments {
		er := ExperimentResponse{ID: exp.ID, Name: exp.Name, Status: string(exp.Status)}
		if exp.StartDate != nil {
			er.StartDate = exp.StartDate.Format(time.RFC3339)
		}
		if exp.EndDate != nil {
			er.EndDate = exp.EndDate.Format(time.RFC3339)
		}
		response = append(response, er)
	}

	writeJSON(w, response)
}

type CreateResponse struct {
	ID       string            `json:"id"`
	Variants map[string]string `json:"variants"` // name -> id
}

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var spec experiment.CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	exp, variants, err := s.experiments.Create(r.Context(), spec)
	if err != nil {
		if errors.Is(err, experiment.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("name", spec.Name).Msg("create failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	created := CreateResponse{ID: exp.ID, Variants: make(map[string]string, len(variants))}
	for _, v := range variants {
		created.Variants[v.Name] = v.ID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
