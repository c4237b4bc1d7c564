// Package httpapi exposes agents and surfaces over HTTP.
//
//	GET  /healthz
//	POST /v1/agents/{agentId}/init      {"specialization"?, "query"?}
//	POST /v1/agents/{agentId}/actions   surface.Action
//	GET  /v1/surfaces?agentId=&surfaceId=
//
// Every /v1 route requires a bearer token; the acting user is its subject.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/auth"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/ids"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// MaxBodyBytes bounds request bodies. Action payloads are capped well below it.
const MaxBodyBytes = 64 << 10

// Server routes API requests to the dispatcher and the surface store.
type Server struct {
	dispatcher *agent.Dispatcher
	surfaces   store.SurfaceStore
	verifier   *auth.Verifier
	listener   *agent.Listener
	clock      clock.Clock
	log        *slog.Logger
	router     *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithListener makes every authenticated caller's channel watched so actions
// they broadcast reach the dispatcher.
func WithListener(l *agent.Listener) Option { return func(s *Server) { s.listener = l } }

func WithClock(c clock.Clock) Option   { return func(s *Server) { s.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// New returns a server. verifier is required.
func New(d *agent.Dispatcher, surfaces store.SurfaceStore, verifier *auth.Verifier, opts ...Option) *Server {
	s := &Server{dispatcher: d, surfaces: surfaces, verifier: verifier, clock: clock.Real(), router: mux.NewRouter()}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrDiscard(s.log)
	s.routes()
	return s
}

// Handler returns the traced root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.requestID(s.router), "a2ui.http")
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.verifier.Middleware, s.watch)
	v1.HandleFunc("/agents/{agentId}/init", s.initSurface).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{agentId}/actions", s.postAction).Methods(http.MethodPost)
	v1.HandleFunc("/surfaces", s.listSurfaces).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errmodel.WriteHTTP(w, r, errmodel.NotFound("route_not_found", "no such endpoint", map[string]any{"path": r.URL.Path}))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errmodel.WriteHTTP(w, r, errmodel.Policy("method_not_allowed", "method not allowed", map[string]any{"method": r.Method}))
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = ids.UUID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), s.log, id)))
	})
}

func (s *Server) watch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := auth.UserFrom(r.Context()); ok && s.listener != nil {
			if err := s.listener.Watch(uid); err != nil {
				logging.FromContext(r.Context(), s.log).Warn("channel watch failed", slog.String("user_id", uid), slog.Any("err", err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) initSurface(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserFrom(r.Context())
	var req agent.InitRequest
	if err := decode(w, r, &req, true); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	req.UserID = uid
	res, err := s.dispatcher.Init(r.Context(), mux.Vars(r)["agentId"], req)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserFrom(r.Context())
	var a surface.Action
	if err := decode(w, r, &a, false); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	a.UserID = uid
	if a.Timestamp.IsZero() {
		a.Timestamp = s.clock.Now().UTC()
	}
	res, err := s.dispatcher.Dispatch(r.Context(), mux.Vars(r)["agentId"], a)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listSurfaces(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserFrom(r.Context())
	q := r.URL.Query()
	out, err := s.surfaces.ListSurfaces(r.Context(), store.Filter{UserID: uid, AgentID: q.Get("agentId"), SurfaceID: q.Get("surfaceId")})
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"surfaces": out})
}

// decode reads a JSON body. An empty body is accepted when optional.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errmodel.Validation("body_too_large", "request body too large", map[string]any{"limit": MaxBodyBytes})
		}
		return errmodel.Validation("bad_json", "request body is not valid JSON", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
