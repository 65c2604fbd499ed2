package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health reports process liveness plus a best-effort database check,
// adapted from the teacher's HealthHandler.Health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if err := h.pingDB(); err != nil {
		resp.Services["database"] = "unhealthy"
		resp.Status = "degraded"
	} else if h.deps.DB != nil {
		resp.Services["database"] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// Ready reports whether the process is ready to accept DIMSE traffic,
// adapted from the teacher's HealthHandler.Ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDB(); err != nil {
		http.Error(w, "service not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type forwardRuleView struct {
	AETitle string             `json:"aeTitle"`
	Rules   []forwardRuleEntry `json:"rules"`
}

type forwardRuleEntry struct {
	Name                   string   `json:"name"`
	CallingAETs            []string `json:"callingAETs,omitempty"`
	CalledAETs             []string `json:"calledAETs,omitempty"`
	SOPClasses             []string `json:"sopClasses,omitempty"`
	DestinationAETs        []string `json:"destinationAETs,omitempty"`
	Mpps2DoseSrTemplateURI string   `json:"mpps2DoseSrTemplateURI,omitempty"`
}

// ForwardRules dumps the currently loaded, evaluated-order rule set for
// every configured Proxy AE (SPEC_FULL.md §6).
func (h *Handler) ForwardRules(w http.ResponseWriter, r *http.Request) {
	views := make([]forwardRuleView, 0, len(h.deps.Evaluators))
	for aeTitle, eval := range h.deps.Evaluators {
		view := forwardRuleView{AETitle: aeTitle}
		for _, rule := range eval.Rules() {
			view.Rules = append(view.Rules, forwardRuleEntry{
				Name:                   rule.Name,
				CallingAETs:            rule.CallingAETs,
				CalledAETs:             rule.CalledAETs,
				SOPClasses:             rule.SOPClasses,
				DestinationAETs:        rule.DestinationAETs,
				Mpps2DoseSrTemplateURI: rule.Mpps2DoseSrTemplateURI,
			})
		}
		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// Reload re-reads the YAML configuration and invalidates the compiled
// Dose-SR template cache (SPEC_FULL.md §6's POST /api/v1/reload).
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reload == nil {
		http.Error(w, "reload not configured", http.StatusNotImplemented)
		return
	}
	if err := h.deps.Reload(); err != nil {
		log.Error().Err(err).Msg("httpapi: reload failed")
		http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if h.deps.Templates != nil {
		h.deps.Templates.Reload()
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("reloaded"))
}

// Sweep triggers an out-of-band Recovery Sweep over every configured
// spool root (SPEC_FULL.md §6's POST /api/v1/sweep).
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweeper == nil {
		http.Error(w, "sweeper not configured", http.StatusNotImplemented)
		return
	}
	for _, target := range h.deps.SweepTargets {
		h.deps.Sweeper.Sweep(target.Root, target.Kind)
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("swept"))
}

type backlogResponse struct {
	DestinationAET string `json:"destinationAET"`
	Count          int64  `json:"count"`
	Source         string `json:"source"`
}

// SpoolBacklog reports a best-effort pending-entry count for
// destinationAET, preferring the Spool Index and falling back to a
// filesystem walk when it is unavailable (SPEC_FULL.md §6).
func (h *Handler) SpoolBacklog(w http.ResponseWriter, r *http.Request) {
	destinationAET := chi.URLParam(r, "destinationAET")

	if h.deps.SpoolIndex != nil {
		count, err := h.deps.SpoolIndex.Backlog(r.Context(), destinationAET)
		if err == nil {
			writeJSON(w, backlogResponse{DestinationAET: destinationAET, Count: count, Source: "index"})
			return
		}
		log.Warn().Err(err).Str("destination_aet", destinationAET).Msg("httpapi: spool index backlog query failed, falling back to filesystem")
	}

	count, err := h.backlogFromFilesystem(destinationAET)
	if err != nil {
		http.Error(w, "failed to count spool backlog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, backlogResponse{DestinationAET: destinationAET, Count: int64(count), Source: "filesystem"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
