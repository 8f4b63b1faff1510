package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/models"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("create session request", zap.Int("positives", len(input.Positives)))
	info, err := s.manager.Create(r.Context(), input.Positives)
	if err != nil {
		s.respondOpError(w, "create session", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.manager.Info(r.Context(), id)
	if err != nil {
		s.respondOpError(w, "get session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete session request", zap.String("session_id", id))
	if err := s.manager.Delete(r.Context(), id); err != nil {
		s.respondOpError(w, "delete session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var input models.AdjudicationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("adjudicate request",
		zap.String("session_id", id),
		zap.Int("add_pos", len(input.AddPositive)),
		zap.Int("add_neg", len(input.AddNegative)),
	)
	info, err := s.manager.Adjudicate(r.Context(), id, input)
	if err != nil {
		s.respondOpError(w, "adjudicate", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("refine request", zap.String("session_id", id))
	info, err := s.manager.Refine(r.Context(), id)
	if err != nil {
		s.respondOpError(w, "refine", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("classify request", zap.String("session_id", id))
	info, err := s.manager.Classify(r.Context(), id)
	if err != nil {
		s.respondOpError(w, "classify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)
	page, err := s.manager.Results(r.Context(), id, offset, limit)
	if err != nil {
		s.respondOpError(w, "results", err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("reset request", zap.String("session_id", id))
	info, err := s.manager.Reset(r.Context(), id)
	if err != nil {
		s.respondOpError(w, "reset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.index.Status())
}

func (s *Server) handleIndexReload(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("index reload request")
	s.index.RequestReload()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "reload requested"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count descriptors failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"descriptors": count,
		"dimensions":  s.store.Dimensions(),
		"sessions":    s.manager.Count(),
		"index":       s.index.Status(),
	}
	if s.appCfg != nil {
		resp["config"] = map[string]interface{}{
			"store_backend":    s.appCfg.Store.Backend,
			"distance_metric":  s.appCfg.Neighbor.DistanceMetric,
			"bit_length":       s.appCfg.Neighbor.BitLength,
			"use_bucket_table": s.appCfg.Neighbor.UseBucketTableOrDefault(),
			"reload_enabled":   s.appCfg.Neighbor.Reload.Enabled,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondOpError maps domain errors onto HTTP status codes.
func (s *Server) respondOpError(w http.ResponseWriter, op string, err error) {
	var dm *models.DimensionMismatchError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &dm):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrSessionInvalid):
		status = http.StatusGone
	case errors.Is(err, models.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrIndexUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, models.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
