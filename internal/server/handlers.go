package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/retrieval"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultK, s.config.Search.MaxK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("k", req.K))
	response, err := s.engine.Search(r.Context(), req.Query, req.K)
	if err != nil {
		if errors.Is(err, retrieval.ErrIndexUnavailable) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req models.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index request", zap.Int("documents", len(req.Documents)))
	stats, err := s.engine.Build(r.Context(), req.Documents)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrNoChunks):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, embedding.ErrUnavailable):
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("indexing failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusCreated, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.engine.Stats(),
		"config": map[string]interface{}{
			"embedding_provider": s.config.Embedding.Provider,
			"keyword_engine":     s.config.Keyword.Engine,
			"chunk_size":         s.config.Chunking.ChunkSize,
			"chunk_overlap":      s.config.Chunking.ChunkOverlap,
			"cache_path":         s.config.Cache.Path,
		},
	}
	if s.cache != nil {
		if info, err := s.cache.Stat(); err == nil {
			resp["cache"] = map[string]interface{}{
				"size_bytes":  info.SizeBytes,
				"modified_at": info.ModTime,
			}
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
