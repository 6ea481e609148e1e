package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"incidentboard/api/handlers"
	"incidentboard/gui"
)

type routeHandlers struct {
	dashboard *handlers.DashboardHandler
	incidents *handlers.IncidentsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		dashboard: handlers.NewDashboardHandler(s.tmpl, s.csrf, s.metrics, s.logger),
		incidents: handlers.NewIncidentsHandler(s.metrics, s.logger),
	}
}

func (s *Server) routes() chi.Router {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)

	r.MethodFunc(http.MethodGet, "/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(gui.Static()))))

	r.Group(func(r chi.Router) {
		r.Use(s.withClient, s.csrfMiddleware)

		r.MethodFunc(http.MethodGet, "/", h.dashboard.Page)
		r.MethodFunc(http.MethodPost, "/view/filter", h.dashboard.SetFilter)
		r.MethodFunc(http.MethodPost, "/view/sort", h.dashboard.SetSort)
		r.MethodFunc(http.MethodPost, "/incidents/{id}/toggle", h.dashboard.Toggle)
		r.MethodFunc(http.MethodPost, "/report/open", h.dashboard.OpenReport)
		r.MethodFunc(http.MethodPost, "/report/close", h.dashboard.CloseReport)
		r.MethodFunc(http.MethodPost, "/report", h.dashboard.SubmitReport)

		r.Route("/api", func(r chi.Router) {
			r.Use(s.jsonMiddleware)
			r.MethodFunc(http.MethodGet, "/incidents", h.incidents.List)
			r.MethodFunc(http.MethodPost, "/incidents", h.incidents.Create)
			r.MethodFunc(http.MethodPost, "/incidents/{id}/toggle", h.incidents.Toggle)
			r.MethodFunc(http.MethodGet, "/state", h.incidents.State)
		})
	})
	return r
}
