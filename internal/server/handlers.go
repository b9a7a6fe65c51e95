package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/cj4yoyo1228/daily-ai-news/internal/db/sqlite"
	"github.com/cj4yoyo1228/daily-ai-news/internal/dedup"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

const (
	// DefaultRunsLimit is the default number of runs listed.
	DefaultRunsLimit = 20

	// MaxRunsLimit caps the runs listing.
	MaxRunsLimit = 200
)

// DedupRequest is the body of POST /api/dedup.
type DedupRequest struct {
	Articles []models.Article `json:"articles"`
}

// DedupResponse is the reply of POST /api/dedup.
type DedupResponse struct {
	Articles []models.Article `json:"articles"`
	Report   dedup.Report     `json:"report"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: GetRequestID(r.Context())})
}

// handleHealth reports liveness and the active embedding model.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
	}
	if s.cfg.Embedding != nil {
		resp["embedding"] = map[string]any{
			"name":       s.cfg.Embedding.Name(),
			"version":    s.cfg.Embedding.Version(),
			"dimensions": s.cfg.Embedding.Dimensions(),
		}
	}
	if s.limiter != nil {
		resp["rate_limit"] = s.limiter.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleModels lists the registered embedding models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.cfg.Models()})
}

// handleDedup deduplicates the posted articles. Identical concurrent bodies
// share one embedding call.
func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var req DedupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	sum := sha256.Sum256(body)
	key := hex.EncodeToString(sum[:])

	// The shared call must not die with whichever request started it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.Timeout)
	defer cancel()

	v, err, shared := s.group.Do(key, func() (any, error) {
		articles, report, err := s.cfg.Deduplicator.ProcessDetailed(ctx, req.Articles)
		if err != nil {
			return nil, err
		}
		if articles == nil {
			articles = []models.Article{}
		}
		return DedupResponse{Articles: articles, Report: report}, nil
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dedup.ErrEmbedding) {
			status = http.StatusBadGateway
		}
		s.logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Int("articles", len(req.Articles)).
			Msg("Dedup request failed")
		writeError(w, r, status, err.Error())
		return
	}

	if shared {
		s.logger.Debug().Str("request_id", GetRequestID(r.Context())).Msg("Dedup result shared")
	}
	writeJSON(w, http.StatusOK, v)
}

// handleRuns lists archived runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := s.cfg.Runs.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*sqlite.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRun returns one archived run with its events.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.cfg.Runs.GetRun(r.Context(), id)
	if errors.Is(err, sqlite.ErrRunNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := s.cfg.Runs.RunEvents(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []sqlite.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "events": events})
}
