package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"incidentboard/core/clients"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/utils"
)

// IncidentsHandler is the JSON view of the same per-client board.
type IncidentsHandler struct {
	metrics *metrics.Metrics
	logger  *utils.Logger
	now     func() time.Time
}

func NewIncidentsHandler(m *metrics.Metrics, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{metrics: m, logger: logger, now: time.Now}
}

type reportPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// List returns the derived list. Query parameters override the stored view
// for this response only.
func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		writeError(w, http.StatusInternalServerError, "app.client_unavailable", "client unavailable")
		return
	}
	d := client.Snapshot()
	filter, order := d.View.Filter, d.View.Sort
	q := r.URL.Query()
	if q.Has("severity") {
		f, err := incidents.ParseSeverityFilter(q.Get("severity"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "incidents.severity_invalid", err.Error())
			return
		}
		filter = f
	}
	if q.Has("sort") {
		o, err := incidents.ParseSortOrder(q.Get("sort"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "incidents.sort_invalid", err.Error())
			return
		}
		order = o
	}
	items := incidents.Derive(d.Incidents(), filter, order)
	if items == nil {
		items = []incidents.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		writeError(w, http.StatusInternalServerError, "app.client_unavailable", "client unavailable")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, jsonPayloadMaxBytes)
	var payload reportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "app.payload_too_large", "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "app.bad_request", "bad request")
		return
	}
	draft := incidents.Draft{Title: payload.Title, Description: payload.Description, Severity: incidents.SeverityLow}
	if strings.TrimSpace(payload.Severity) != "" {
		sev, err := incidents.ParseSeverity(payload.Severity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "incidents.severity_invalid", err.Error())
			return
		}
		draft.Severity = sev
	}
	var created incidents.Incident
	_, err := client.Transition(func(d incidents.Dashboard, repo incidents.Repository) (incidents.Dashboard, error) {
		next, inc, err := d.SubmitDraft(r.Context(), repo, draft, h.now())
		created = inc
		return next, err
	})
	switch {
	case err == nil:
		h.metrics.IncidentSubmitted(string(created.Severity))
		if h.logger != nil {
			h.logger.Printf("incident %d reported by client %s severity=%s", created.ID, client.ID, created.Severity)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": created})
	case errors.Is(err, incidents.ErrDraftIncomplete):
		h.metrics.SubmissionRejected()
		writeError(w, http.StatusUnprocessableEntity, "incidents.draft_incomplete", incidents.NoticeDraftIncomplete)
	default:
		if h.logger != nil {
			h.logger.Errorf("report incident for client %s: %v", client.ID, err)
		}
		writeError(w, http.StatusInternalServerError, "app.server_error", "server error")
	}
}

func (h *IncidentsHandler) State(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		writeError(w, http.StatusInternalServerError, "app.client_unavailable", "client unavailable")
		return
	}
	writeJSON(w, http.StatusOK, client.Snapshot().View)
}

func (h *IncidentsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		writeError(w, http.StatusInternalServerError, "app.client_unavailable", "client unavailable")
		return
	}
	id, ok := incidentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "incidents.id_invalid", "invalid id")
		return
	}
	if _, found := client.Snapshot().Find(id); !found {
		writeError(w, http.StatusNotFound, "incidents.not_found", "not found")
		return
	}
	d, _ := client.Transition(func(d incidents.Dashboard, _ incidents.Repository) (incidents.Dashboard, error) {
		return d.ToggleExpanded(id), nil
	})
	writeJSON(w, http.StatusOK, d.View)
}
