package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"incidentboard/config"
	"incidentboard/core/auth"
	"incidentboard/core/clients"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/store"
	"incidentboard/core/utils"
	"incidentboard/gui"
)

func newTestServer(t *testing.T, health func(context.Context) error) *Server {
	t.Helper()
	ctx := context.Background()
	cfg := &config.AppConfig{
		DBDriver:   config.DriverSQLite,
		DBPath:     filepath.Join(t.TempDir(), "board.db"),
		ListenAddr: "127.0.0.1:0",
		Storage:    config.StorageConfig{SlotKey: "newIncidents"},
		Clients: config.ClientsConfig{
			CookieName:   "incidentboard_client",
			CookieMaxAge: time.Hour,
			IdleTTL:      time.Hour,
			MaxClients:   100,
		},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, cfg, db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	m := metrics.New()
	slots := store.NewSlotStore(db, cfg, m, logger)
	reg := clients.NewRegistry(cfg.Clients, func(id string) incidents.Repository {
		return slots.Repository(cfg.SlotKeyFor(id))
	}, m, logger)
	csrf, err := auth.NewCSRF("test-key")
	if err != nil {
		t.Fatalf("csrf: %v", err)
	}
	tmpl, err := gui.Templates()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if health == nil {
		health = db.PingContext
	}
	srv, err := NewServer(cfg, ServerDeps{Registry: reg, Metrics: m, CSRF: csrf, Templates: tmpl, Health: health}, logger)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv
}

// session performs a first GET and returns the issued cookie and token.
func session(t *testing.T, h http.Handler) (*http.Cookie, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "incidentboard_client" {
			cookie = c
		}
	}
	if cookie == nil || !clients.ValidClientID(cookie.Value) {
		t.Fatalf("client cookie not issued")
	}
	token := rr.Header().Get(csrfHeader)
	if token == "" || !strings.Contains(rr.Body.String(), token) {
		t.Fatalf("csrf token missing from header or page")
	}
	return cookie, token
}

func postForm(h http.Handler, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestFormPostRequiresCSRFToken(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	cookie, token := session(t, h)

	rr := postForm(h, "/report/open", cookie, url.Values{})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rr.Code)
	}
	rr = postForm(h, "/report/open", cookie, url.Values{csrfFormField: {"forged"}})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged token, got %d", rr.Code)
	}
	rr = postForm(h, "/report/open", cookie, url.Values{csrfFormField: {token}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 with valid token, got %d", rr.Code)
	}
}

func TestReportFlowThroughRouter(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	cookie, token := session(t, h)

	postForm(h, "/report/open", cookie, url.Values{csrfFormField: {token}})
	rr := postForm(h, "/report", cookie, url.Values{csrfFormField: {token}, "title": {""}, "description": {"d"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	rr = postForm(h, "/report", cookie, url.Values{csrfFormField: {token}, "title": {"Router title"}, "description": {"d"}, "severity": {"Medium"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	page := httptest.NewRecorder()
	h.ServeHTTP(page, req)
	if !strings.Contains(page.Body.String(), "Router title") {
		t.Fatalf("new incident missing from page")
	}

	fresh := httptest.NewRecorder()
	h.ServeHTTP(fresh, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(fresh.Body.String(), "Router title") {
		t.Fatalf("another client must not see this client's additions")
	}
}

func TestSubmitAfterIdleEvictionKeepsDraft(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.Handler()
	cookie, token := session(t, h)
	postForm(h, "/report/open", cookie, url.Values{csrfFormField: {token}})
	if evicted := srv.registry.Sweep(time.Now().Add(2 * time.Hour)); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}

	rr := postForm(h, "/report", cookie, url.Values{csrfFormField: {token}, "title": {"typed"}, "description": {""}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "typed") {
		t.Fatalf("expected 422 with draft kept, got %d", rr.Code)
	}
	rr = postForm(h, "/report", cookie, url.Values{csrfFormField: {token}, "title": {"typed"}, "description": {"long draft"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d %s", rr.Code, rr.Body.String())
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	page := httptest.NewRecorder()
	h.ServeHTTP(page, req)
	if !strings.Contains(page.Body.String(), "typed") {
		t.Fatalf("submitted incident missing after eviction")
	}
}

func TestClientIDStaysOffTheWire(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: rr, status: http.StatusOK}
	srv.withClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !clients.ValidClientID(rec.clientID) {
		t.Fatalf("recorder should carry the client id, got %q", rec.clientID)
	}
	for name := range rr.Header() {
		if strings.Contains(strings.Join(rr.Header().Values(name), ","), rec.clientID) && name != "Set-Cookie" {
			t.Fatalf("client id leaked in header %s", name)
		}
	}
}

func TestAPIRoutesUseHeaderToken(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	cookie, token := session(t, h)

	send := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/incidents", strings.NewReader(`{"title":"A","description":"B","severity":"Low"}`))
		req.Header.Set("Content-Type", "application/json")
		if tok != "" {
			req.Header.Set(csrfHeader, tok)
		}
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	if rr := send(""); rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), "app.csrf_invalid") {
		t.Fatalf("expected json 403, got %d %s", rr.Code, rr.Body.String())
	}
	if rr := send(token); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/incidents?severity=Low", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected list response %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if strings.Count(rr.Body.String(), `"severity":"Low"`) != 2 {
		t.Fatalf("expected seed Low plus new Low incident: %s", rr.Body.String())
	}
}

func TestInvalidCookieGetsFreshClient(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "incidentboard_client", Value: "not-a-uuid"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || len(rr.Result().Cookies()) == 0 {
		t.Fatalf("expected a replacement cookie, got %d", rr.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	session(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "incidentboard_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
	if !strings.Contains(rr.Body.String(), `route="/"`) {
		t.Fatalf("requests should be labelled by route pattern")
	}
}

func TestHealthzReportsUnavailable(t *testing.T) {
	h := newTestServer(t, func(context.Context) error { return errors.New("down") }).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestStaticAndSecurityHeaders(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/dashboard.css", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), ".incident-card") {
		t.Fatalf("stylesheet not served: %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Fatalf("csp header missing")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("nosniff header missing")
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestNewServerRequiresRegistry(t *testing.T) {
	if _, err := NewServer(&config.AppConfig{}, ServerDeps{}, nil); err == nil {
		t.Fatalf("expected error without registry")
	}
}
