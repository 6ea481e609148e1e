package api

import (
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"incidentboard/config"
	"incidentboard/core/clients"
)

const (
	csrfHeader          = "X-CSRF-Token"
	csrfFormField       = "csrf_token"
	formPayloadMaxBytes = 64 * 1024
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self'; script-src 'self'; img-src 'self' data:; object-src 'none'; frame-ancestors 'self'; form-action 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if isHTTPSRequest(r, s.cfg) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.logger != nil {
			s.logger.Debugf("REQ %s %s ip=%s", r.Method, r.URL.Path, s.clientIP(r))
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		s.metrics.ObserveRequest(r.Method, route, rec.status, dur)
		if s.logger != nil {
			client := "-"
			if rec.clientID != "" {
				client = rec.clientID
			}
			s.logger.Printf("RESP %s %s client=%s status=%d dur=%s bytes=%d", r.Method, r.URL.Path, client, rec.status, dur, rec.size)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
	// clientID is filled in by withClient for the RESP log line.
	clientID string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// withClient resolves the browser client from its cookie, issuing a new id
// when the cookie is missing or malformed, and puts the client in the request
// context. The client's CSRF token is exposed in the X-CSRF-Token header.
func (s *Server) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := s.cfg.Clients.CookieName
		id := ""
		if cookie, err := r.Cookie(name); err == nil && clients.ValidClientID(cookie.Value) {
			id = cookie.Value
		}
		if id == "" {
			fresh, err := clients.NewClientID()
			if err != nil {
				if s.logger != nil {
					s.logger.Errorf("issue client id: %v", err)
				}
				http.Error(w, "server error", http.StatusInternalServerError)
				return
			}
			id = fresh
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    id,
				Path:     "/",
				MaxAge:   int(s.cfg.Clients.CookieMaxAge / time.Second),
				HttpOnly: true,
				Secure:   isHTTPSRequest(r, s.cfg),
				SameSite: http.SameSiteLaxMode,
			})
		}
		client, err := s.registry.Get(r.Context(), id)
		if err != nil {
			if s.logger != nil {
				s.logger.Errorf("load client %s: %v", id, err)
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"error": map[string]string{"code": "app.client_unavailable", "message": "client state unavailable"},
				})
				return
			}
			http.Error(w, "client state unavailable", http.StatusServiceUnavailable)
			return
		}
		if token, err := s.csrf.Token(client.ID); err == nil {
			w.Header().Set(csrfHeader, token)
		}
		if rec, ok := w.(*statusRecorder); ok {
			rec.clientID = client.ID
		}
		next.ServeHTTP(w, r.WithContext(clients.WithClient(r.Context(), client)))
	})
}

// csrfMiddleware checks state-changing requests against the token derived
// for the requesting client. The token comes from the X-CSRF-Token header or
// the csrf_token form field.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		client := clients.FromContext(r.Context())
		token := strings.TrimSpace(r.Header.Get(csrfHeader))
		if token == "" && isFormRequest(r) {
			r.Body = http.MaxBytesReader(w, r.Body, formPayloadMaxBytes)
			token = r.PostFormValue(csrfFormField)
		}
		if client == nil || !s.csrf.Verify(client.ID, token) {
			if s.logger != nil {
				s.logger.Warnf("CSRF fail %s %s", r.Method, r.URL.Path)
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSON(w, http.StatusForbidden, map[string]any{
					"error": map[string]string{"code": "app.csrf_invalid", "message": "csrf invalid"},
				})
				return
			}
			http.Error(w, "csrf invalid", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isFormRequest(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

func (s *Server) clientIP(r *http.Request) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	ip = strings.TrimSpace(ip)
	if s == nil || s.cfg == nil || !isTrustedProxy(ip, s.cfg.Security.TrustedProxies) {
		return ip
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if candidate := extractClientIPFromXFF(xff, s.cfg.Security.TrustedProxies); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}
	return ip
}

func isHTTPSRequest(r *http.Request, cfg *config.AppConfig) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if cfg == nil {
		return false
	}
	if cfg.TLSEnabled {
		return true
	}
	remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if remoteIP == "" {
		remoteIP = strings.TrimSpace(r.RemoteAddr)
	}
	if !isTrustedProxy(strings.TrimSpace(remoteIP), cfg.Security.TrustedProxies) {
		return false
	}
	proto := strings.ToLower(strings.TrimSpace(strings.SplitN(r.Header.Get("X-Forwarded-Proto"), ",", 2)[0]))
	return proto == "https"
}

func extractClientIPFromXFF(xff string, trusted []string) string {
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		parsed := net.ParseIP(strings.TrimSpace(parts[i]))
		if parsed == nil {
			continue
		}
		if val := parsed.String(); !isTrustedProxy(val, trusted) {
			return val
		}
	}
	return ""
}

func isTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range trusted {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
