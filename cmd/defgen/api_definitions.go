package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/CTAG07/defgen/pkg/render"
)

// DefinitionsAPI holds the dependencies for the definition and model API handlers.
type DefinitionsAPI struct {
	config   *Config
	store    *markov.Store
	renderer *render.Renderer
	metrics  *Metrics
	logger   *slog.Logger

	models map[string]*markov.Model
	mu     sync.RWMutex
}

// DefinitionResult is one generated definition in an API response.
type DefinitionResult struct {
	Text     string   `json:"text"`
	Rendered string   `json:"rendered"`
	Tokens   []string `json:"tokens"`
}

// DefinitionsResponse is the body returned by GET /api/definitions.
type DefinitionsResponse struct {
	Model       string             `json:"model"`
	Definitions []DefinitionResult `json:"definitions"`
}

// NewDefinitionsAPI creates a new instance of the DefinitionsAPI.
func NewDefinitionsAPI(config *Config, store *markov.Store, renderer *render.Renderer, metrics *Metrics, logger *slog.Logger) *DefinitionsAPI {
	return &DefinitionsAPI{
		config:   config,
		store:    store,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		models:   make(map[string]*markov.Model),
	}
}

// RegisterRoutes sets up the routing for the /api/definitions and /api/models endpoints.
func (a *DefinitionsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/definitions", a.handleDefinitions)
	mux.HandleFunc("/api/models", a.handleListModels)
	mux.HandleFunc("/api/models/", a.handleModelByName)
}

// model returns the named model, loading it from the store on first use.
func (a *DefinitionsAPI) model(r *http.Request, name string) (*markov.Model, error) {
	a.mu.RLock()
	m, ok := a.models[name]
	a.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := a.store.LoadModel(r.Context(), name)
	if err != nil {
		return nil, err
	}
	m.SetLogger(a.logger)

	a.mu.Lock()
	defer a.mu.Unlock()
	// Another request may have loaded it meanwhile; keep the first copy.
	if existing, ok := a.models[name]; ok {
		return existing, nil
	}
	a.models[name] = m
	a.metrics.ModelsLoaded.Set(float64(len(a.models)))
	a.logger.Info("Loaded model", slog.String("model", name), slog.Int("vocab_size", m.Vocabulary().Len()))
	return m, nil
}

// forget drops a cached model so the next request reloads it.
func (a *DefinitionsAPI) forget(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.models, name)
	a.metrics.ModelsLoaded.Set(float64(len(a.models)))
}

// handleDefinitions generates definitions: GET /api/definitions?model=&count=&seed=
func (a *DefinitionsAPI) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	name := query.Get("model")
	if name == "" {
		name = a.config.Model.DefaultModel
	}

	count := 1
	if raw := query.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > a.config.Server.MaxCount {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("count must be an integer between 1 and %d", a.config.Server.MaxCount))
			return
		}
		count = n
	}

	var rng *rand.Rand
	if raw := query.Get("seed"); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "seed must be an unsigned integer")
			return
		}
		rng = newRand(seed)
	} else {
		rng = newRand(0)
	}

	m, err := a.model(r, name)
	if err != nil {
		if errors.Is(err, markov.ErrModelNotFound) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		a.logger.Error("Failed to load model", "model", name, "error", err, "request_id", requestID(r.Context()))
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
		return
	}

	opts, err := a.config.SampleOptions()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defs, err := m.GenerateN(r.Context(), rng, count, a.config.Generate.Retries, opts...)
	a.metrics.ObserveGeneration(name, defs, err)
	if err != nil {
		if errors.Is(err, markov.ErrExhaustedPath) {
			a.logger.Warn("Generation exhausted", "model", name, "error", err, "request_id", requestID(r.Context()))
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.logger.Error("Generation failed", "model", name, "error", err, "request_id", requestID(r.Context()))
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		return
	}

	resp := DefinitionsResponse{Model: name, Definitions: make([]DefinitionResult, 0, len(defs))}
	for i, tokens := range defs {
		data := render.NewData(tokens)
		data.Index = i + 1
		data.Model = name
		var sb strings.Builder
		if err = a.renderer.RenderData(&sb, data); err != nil {
			a.logger.Error("Failed to render definition", "error", err, "request_id", requestID(r.Context()))
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Definitions = append(resp.Definitions, DefinitionResult{
			Text:     data.Text,
			Rendered: sb.String(),
			Tokens:   tokens,
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// handleListModels lists the stored models ordered by name.
func (a *DefinitionsAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := a.store.GetModelInfos(r.Context())
	if err != nil {
		a.logger.Error("Failed to get model infos", "error", err, "request_id", requestID(r.Context()))
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	// Convert map to slice for consistent JSON output
	modelList := make([]markov.ModelInfo, 0, len(models))
	for _, model := range models {
		modelList = append(modelList, model)
	}
	sort.Slice(modelList, func(i, j int) bool { return modelList[i].Name < modelList[j].Name })
	respondWithJSON(w, http.StatusOK, modelList)
}

// handleModelByName routes actions for a specific model: GET .../{name},
// GET .../{name}/stats and DELETE .../{name}.
func (a *DefinitionsAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	name := parts[0]

	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	info, err := a.store.GetModelInfo(r.Context(), name)
	if err != nil {
		if errors.Is(err, markov.ErrModelNotFound) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		a.logger.Error("Failed to get model info by name", "name", name, "error", err, "request_id", requestID(r.Context()))
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			respondWithJSON(w, http.StatusOK, info)
		case http.MethodDelete:
			if err = a.store.RemoveModel(r.Context(), name); err != nil {
				a.logger.Error("Failed to remove model", "name", name, "error", err, "request_id", requestID(r.Context()))
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			a.forget(name)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "stats":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		stats, err := a.store.ModelStats(r.Context(), name)
		if err != nil {
			a.logger.Error("Failed to get model stats", "name", name, "error", err, "request_id", requestID(r.Context()))
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, stats)

	case "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", name))
		if err = a.store.ExportModel(r.Context(), name, w); err != nil {
			a.logger.Error("Failed to export model", "name", name, "error", err, "request_id", requestID(r.Context()))
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}
