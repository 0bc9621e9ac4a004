package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"notice_generator/internal/config"
	"notice_generator/internal/generator"
	"notice_generator/internal/jobs"
	"notice_generator/internal/metrics"
	"notice_generator/internal/store"
)

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg    config.Config
	store  *store.Store
	runner *jobs.Runner
}

func NewRouter(cfg config.Config, st *store.Store, runner *jobs.Runner) *Router {
	return &Router{cfg: cfg, store: st, runner: runner}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/generate", r.generate)
	mux.HandleFunc("/api/templates", r.templates)
	mux.HandleFunc("/api/batches", r.batches)
	mux.HandleFunc("/api/records", r.records)
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/metrics", r.metrics)
	mux.HandleFunc("/ops/jobs", r.jobs)
	mux.HandleFunc("/ops/jobs/enqueue", r.enqueue)
	mux.HandleFunc("/ops/jobs/", r.jobDetail)
}

// generateRequest mirrors the engine request plus an optional batch label.
type generateRequest struct {
	EventType      string                    `json:"event_type"`
	ScenarioKey    string                    `json:"scenario_key"`
	Input          string                    `json:"input"`
	Edits          map[int]map[string]string `json:"edits,omitempty"`
	PlaceOverrides map[int]string            `json:"place_overrides,omitempty"`
	Options        generator.Options         `json:"options"`
	Label          string                    `json:"label,omitempty"`
	Persist        *bool                     `json:"persist,omitempty"`
}

func (r *Router) generate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body generateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := generator.Scenarios[generator.EventType(body.EventType)]; !ok {
		http.Error(w, "unknown event_type", http.StatusBadRequest)
		return
	}
	if body.Options.WhenWord == "" {
		body.Options.WhenWord = "завтра"
	}
	if body.Options.CancelReason == "" {
		body.Options.CancelReason = "с погодными условиями"
	}
	ctx := req.Context()
	templates, err := r.store.ActiveTemplates(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res := generator.Generate(generator.Request{
		EventType:      generator.EventType(body.EventType),
		ScenarioKey:    body.ScenarioKey,
		Input:          body.Input,
		Edits:          body.Edits,
		PlaceOverrides: body.PlaceOverrides,
		Options:        body.Options,
	}, templates)

	batchID := uuid.NewString()
	now := config.Now()
	errCount := 0
	for _, rec := range res.Records {
		if rec.Status != generator.StatusOK {
			errCount++
		}
	}
	status := "generated"
	if errCount > 0 || len(res.ParseErrors) > 0 {
		status = "generated_with_errors"
	}
	if body.Persist == nil || *body.Persist {
		_ = r.store.UpsertBatch(ctx, store.Batch{
			BatchID:     batchID,
			EventType:   body.EventType,
			ScenarioKey: body.ScenarioKey,
			Source:      "api:" + body.Label,
			Status:      status,
			RecordCount: len(res.Records),
			ErrorCount:  errCount,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		_ = r.store.ReplaceRecords(ctx, batchID, res.Records, now)
	}
	metrics.IncBatches()
	metrics.AddRecordsOK(len(res.Records) - errCount)
	metrics.AddRecordsFailed(errCount)

	respondJSON(w, map[string]any{
		"batch_id":     batchID,
		"records":      res.Records,
		"parse_errors": res.ParseErrors,
		"row_errors":   res.RowErrors,
	})
}

func (r *Router) templates(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		list, err := r.store.ListTemplates(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, list)
	case http.MethodPost:
		var tpl generator.Template
		if err := json.NewDecoder(req.Body).Decode(&tpl); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := generator.Scenarios[tpl.EventType]; !ok {
			http.Error(w, "unknown event_type", http.StatusBadRequest)
			return
		}
		if tpl.ScenarioKey == "" {
			http.Error(w, "scenario_key required", http.StatusBadRequest)
			return
		}
		if err := r.store.UpsertTemplate(req.Context(), tpl, config.Now()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, tpl)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Router) batches(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListBatches(req.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) records(w http.ResponseWriter, req *http.Request) {
	batchID := req.URL.Query().Get("batch_id")
	if batchID == "" {
		http.Error(w, "batch_id required", http.StatusBadRequest)
		return
	}
	list, err := r.store.RecordsByBatch(req.Context(), batchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	batches, _ := r.store.ListBatches(ctx, 5)
	jobList, _ := r.store.ListJobs(ctx, 10)
	respondJSON(w, map[string]any{"batches": batches, "jobs": jobList, "workers": r.cfg.WorkerCount})
}

func (r *Router) metrics(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, metrics.Snapshot())
}

func (r *Router) jobs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListJobs(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		BatchID string      `json:"batch_id"`
		Stage   jobs.Stage  `json:"stage"`
		Params  interface{} `json:"params"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := body.Params.(map[string]any)
	if !ok {
		p = map[string]any{}
	}
	job, err := r.runner.Enqueue(req.Context(), body.BatchID, body.Stage, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, job)
}

func (r *Router) jobDetail(w http.ResponseWriter, req *http.Request) {
	// /ops/jobs/{id} or /ops/jobs/{id}/logs
	path := req.URL.Path
	if strings.HasSuffix(path, "/logs") {
		idStr := strings.TrimSuffix(strings.TrimPrefix(path, "/ops/jobs/"), "/logs")
		id, _ := strconv.ParseInt(idStr, 10, 64)
		logs := r.runner.Logs(id)
		respondJSON(w, logs)
		return
	}
	idStr := strings.TrimPrefix(path, "/ops/jobs/")
	id, _ := strconv.ParseInt(idStr, 10, 64)
	jobList, err := r.store.ListJobs(req.Context(), 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, j := range jobList {
		if j.ID == id {
			respondJSON(w, j)
			return
		}
	}
	http.NotFound(w, req)
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
