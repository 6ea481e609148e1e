package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"incidentboard/core/auth"
	"incidentboard/core/clients"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/utils"
)

// DashboardHandler serves the server-rendered board. Every state change is a
// form post that redirects back to the page.
type DashboardHandler struct {
	tmpl    *template.Template
	csrf    *auth.CSRF
	metrics *metrics.Metrics
	logger  *utils.Logger
	now     func() time.Time
}

func NewDashboardHandler(tmpl *template.Template, csrf *auth.CSRF, m *metrics.Metrics, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{tmpl: tmpl, csrf: csrf, metrics: m, logger: logger, now: time.Now}
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type incidentCard struct {
	Incident incidents.Incident
	Expanded bool
}

type dashboardPage struct {
	CSRFToken  string
	Filters    []option
	Sorts      []option
	Severities []option
	Cards      []incidentCard
	ModalOpen  bool
	Draft      incidents.Draft
	Notice     string
}

var sortLabels = map[incidents.SortOrder]string{
	incidents.NewestFirst: "⏳ Newest",
	incidents.OldestFirst: "🕰️ Oldest",
}

func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		http.Error(w, "client unavailable", http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, client, client.Snapshot())
}

func (h *DashboardHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	f, err := incidents.ParseSeverityFilter(r.FormValue("severity"))
	if err != nil {
		http.Error(w, "invalid severity", http.StatusBadRequest)
		return
	}
	h.apply(w, r, func(d incidents.Dashboard) incidents.Dashboard { return d.WithFilter(f) })
}

func (h *DashboardHandler) SetSort(w http.ResponseWriter, r *http.Request) {
	order, err := incidents.ParseSortOrder(r.FormValue("order"))
	if err != nil {
		http.Error(w, "invalid sort order", http.StatusBadRequest)
		return
	}
	h.apply(w, r, func(d incidents.Dashboard) incidents.Dashboard { return d.WithSort(order) })
}

func (h *DashboardHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	client := clients.FromContext(r.Context())
	if client == nil {
		http.Error(w, "client unavailable", http.StatusInternalServerError)
		return
	}
	if _, found := client.Snapshot().Find(id); !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.apply(w, r, func(d incidents.Dashboard) incidents.Dashboard { return d.ToggleExpanded(id) })
}

func (h *DashboardHandler) OpenReport(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, incidents.Dashboard.OpenReport)
}

func (h *DashboardHandler) CloseReport(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, incidents.Dashboard.CloseReport)
}

// SubmitReport stores the posted draft. An incomplete draft re-renders the
// open form with the notice and status 422. The form is reopened first when
// the client's state was dropped while the page still showed it.
func (h *DashboardHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	client := clients.FromContext(r.Context())
	if client == nil {
		http.Error(w, "client unavailable", http.StatusInternalServerError)
		return
	}
	draft := incidents.Draft{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if raw := strings.TrimSpace(r.FormValue("severity")); raw != "" {
		sev, err := incidents.ParseSeverity(raw)
		if err != nil {
			http.Error(w, "invalid severity", http.StatusBadRequest)
			return
		}
		draft.Severity = sev
	}
	var created incidents.Incident
	d, err := client.Transition(func(d incidents.Dashboard, repo incidents.Repository) (incidents.Dashboard, error) {
		if !d.View.ModalOpen {
			d = d.OpenReport()
		}
		next, inc, err := d.EditDraft(draft).Submit(r.Context(), repo, h.now())
		created = inc
		return next, err
	})
	switch {
	case err == nil:
		h.metrics.IncidentSubmitted(string(created.Severity))
		if h.logger != nil {
			h.logger.Printf("incident %d reported by client %s severity=%s", created.ID, client.ID, created.Severity)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, incidents.ErrDraftIncomplete):
		h.metrics.SubmissionRejected()
		h.render(w, http.StatusUnprocessableEntity, client, d)
	default:
		if h.logger != nil {
			h.logger.Errorf("report incident for client %s: %v", client.ID, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func (h *DashboardHandler) apply(w http.ResponseWriter, r *http.Request, fn func(incidents.Dashboard) incidents.Dashboard) {
	client := clients.FromContext(r.Context())
	if client == nil {
		http.Error(w, "client unavailable", http.StatusInternalServerError)
		return
	}
	_, _ = client.Transition(func(d incidents.Dashboard, _ incidents.Repository) (incidents.Dashboard, error) {
		return fn(d), nil
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *DashboardHandler) render(w http.ResponseWriter, status int, client *clients.Client, d incidents.Dashboard) {
	token, err := h.csrf.Token(client.ID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "dashboard", buildPage(d, token)); err != nil {
		if h.logger != nil {
			h.logger.Errorf("render dashboard: %v", err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
	if d.Notice != "" {
		_, _ = client.Transition(func(d incidents.Dashboard, _ incidents.Repository) (incidents.Dashboard, error) {
			return d.ClearNotice(), nil
		})
	}
}

func buildPage(d incidents.Dashboard, token string) dashboardPage {
	page := dashboardPage{
		CSRFToken: token,
		ModalOpen: d.View.ModalOpen,
		Draft:     d.Draft,
		Notice:    d.Notice,
	}
	for _, f := range incidents.Filters {
		page.Filters = append(page.Filters, option{Value: string(f), Label: f.Emoji() + " " + string(f), Selected: f == d.View.Filter})
	}
	for _, o := range incidents.SortOrders {
		page.Sorts = append(page.Sorts, option{Value: o.Label(), Label: sortLabels[o], Selected: o == d.View.Sort})
	}
	for _, s := range incidents.Severities {
		page.Severities = append(page.Severities, option{Value: string(s), Label: string(s), Selected: s == d.Draft.Severity})
	}
	for _, item := range d.Visible() {
		page.Cards = append(page.Cards, incidentCard{Incident: item, Expanded: d.IsExpanded(item.ID)})
	}
	return page
}
