package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/pack"
)

// handleSearch handles POST /api/search. Unknown keys are 404; embedder or
// reranker failures are 502. A pack that is still building yields 200 with
// empty arrays.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PackKey == "" {
		writeError(ctx, w, http.StatusBadRequest, "packKey is required")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(ctx, w, http.StatusBadRequest, "query is required")
		return
	}
	if _, ok := s.packs.Manifest(req.PackKey); !ok {
		writeError(ctx, w, http.StatusNotFound, pack.ErrUnknownPack.Error())
		return
	}

	k := req.K
	if k <= 0 {
		k = s.cfg.DefaultK
	}

	res, err := s.retriever.Retrieve(ctx, req.PackKey, req.Query, k)
	if err != nil {
		logging.FromContext(ctx).Error("retrieve failed",
			slog.String("pack_key", req.PackKey),
			slog.Any("error", err),
		)
		writeError(ctx, w, http.StatusBadGateway, "retrieval failed")
		return
	}
	writeJSON(ctx, w, http.StatusOK, res)
}
