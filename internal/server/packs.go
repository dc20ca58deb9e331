package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/docpack-go/internal/journal"
	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/pack"
)

const (
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 20
	// defaultRuns is the number of journal entries returned when n is absent.
	defaultRuns = 20
	// maxRuns caps the n query parameter.
	maxRuns = 200
)

// handleCreatePack handles POST /api/packs. It builds the pack on first
// request, which blocks for the synchronous ingest, and returns at once for
// known packs.
func (s *Server) handleCreatePack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createPackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, status, err := s.packs.EnsurePack(ctx, req.Topic, req.Language)
	if err != nil {
		if errors.Is(err, pack.ErrClosed) {
			writeError(ctx, w, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		logging.FromContext(ctx).Error("ensure pack failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, "pack build failed")
		return
	}
	writeJSON(ctx, w, http.StatusOK, createPackResponse{Key: key, Status: status})
}

// handleListPacks handles GET /api/packs.
func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries, err := s.packs.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list packs failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusBadGateway, "index unavailable")
		return
	}
	writeJSON(ctx, w, http.StatusOK, listPacksResponse{Packs: summaries})
}

// handleGetPack handles GET /api/packs/{key}.
func (s *Server) handleGetPack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, ok := s.packs.Manifest(r.PathValue("key"))
	if !ok {
		writeError(ctx, w, http.StatusNotFound, pack.ErrUnknownPack.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, m)
}

// handleRuns handles GET /api/packs/{key}/runs?n=N.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.runs == nil {
		writeError(ctx, w, http.StatusNotFound, "ingest journal disabled")
		return
	}
	key := r.PathValue("key")
	if _, ok := s.packs.Manifest(key); !ok {
		writeError(ctx, w, http.StatusNotFound, pack.ErrUnknownPack.Error())
		return
	}

	n := defaultRuns
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(ctx, w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(parsed, maxRuns)
	}

	runs, err := s.runs.Runs(ctx, key, n)
	if err != nil {
		logging.FromContext(ctx).Error("read journal failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(ctx, w, http.StatusOK, runsResponse{Runs: runs})
}
