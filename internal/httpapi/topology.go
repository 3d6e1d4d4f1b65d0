package httpapi

import (
	"net/http"
	"time"

	"fibermap/core-go/internal/topology"
)

// Samples older than this are treated as missing.
const defaultSampleWindow = 15 * time.Minute

// TopologyStore is what the layout endpoint reads; *sqlcgen.Queries satisfies it.
type TopologyStore = topology.Store

func (h *Handler) handleGetTopologyLayout(w http.ResponseWriter, r *http.Request) {
	if !h.ensureTopology(w) {
		return
	}

	devices, m, err := topology.LoadFromStore(r.Context(), h.topology, time.Now().Add(-h.sampleWindow))
	if err != nil {
		h.log.Error().Err(err).Msg("load topology failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to load topology", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, topology.Layout(devices, m, h.layout))
}

func (h *Handler) handlePostTopologyLayout(w http.ResponseWriter, r *http.Request) {
	var req topology.Input
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid layout request", map[string]any{"error": err.Error()})
		return
	}

	devices, m := req.Build()
	h.writeJSON(w, http.StatusOK, topology.Layout(devices, m, h.layout))
}
