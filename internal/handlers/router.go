package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chandanyadavsde/vms-v2/internal/buildinfo"
	"github.com/chandanyadavsde/vms-v2/internal/middleware"
	"github.com/chandanyadavsde/vms-v2/internal/services/prelr"
	"github.com/chandanyadavsde/vms-v2/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Sync      *prelr.SyncService
	Linker    *prelr.Linker
	Reader    *prelr.Reader
	Hub       *websocket.Hub // optional
	Log       *logrus.Entry
	JWTSecret string

	// Ping reports database and cache health; optional.
	Ping func(ctx context.Context) error
}

// Router wraps the mux router and the services
type Router struct {
	*mux.Router
	sync   *prelr.SyncService
	linker *prelr.Linker
	reader *prelr.Reader
	hub    *websocket.Hub
	log    *logrus.Entry
	ping   func(ctx context.Context) error

	handler http.Handler
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Router{
		Router: mux.NewRouter(),
		sync:   d.Sync,
		linker: d.Linker,
		reader: d.Reader,
		hub:    d.Hub,
		log:    log.WithField("component", "http"),
		ping:   d.Ping,
	}

	r.Use(middleware.CorrelationID, middleware.RequestLogger(r.log))
	r.handler = middleware.CORS(r.Router)

	r.HandleFunc("/", r.root).Methods(http.MethodGet)
	r.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	vms := r.PathPrefix("/vms").Subrouter()
	vms.HandleFunc("/preLr/{id}", r.fetchPreLR).Methods(http.MethodGet)
	vms.HandleFunc("/plants", r.listPlants).Methods(http.MethodGet)
	vms.HandleFunc("/plants/{plant}", r.plantDetails).Methods(http.MethodGet)
	vms.HandleFunc("/lr", r.listLRs).Methods(http.MethodGet)
	vms.HandleFunc("/ws", r.serveWs).Methods(http.MethodGet)

	// Sync triggers and writes; GET kept for cron callers of the old API
	auth := middleware.Auth(d.JWTSecret)
	vms.Handle("/preLrCount", auth(http.HandlerFunc(r.harvestIDs))).Methods(http.MethodGet, http.MethodPost)
	vms.Handle("/sync-detail", auth(http.HandlerFunc(r.syncDetails))).Methods(http.MethodGet, http.MethodPost)
	vms.Handle("/sync-detial", auth(http.HandlerFunc(r.syncDetails))).Methods(http.MethodGet, http.MethodPost)
	vms.Handle("/lr", auth(http.HandlerFunc(r.createLR))).Methods(http.MethodPost)
	vms.Handle("/lr/rebuild-refs", auth(http.HandlerFunc(r.rebuildLRRefs))).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "Route not found")
	})

	return r
}

// ServeHTTP dispatches through the CORS wrapper.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) root(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("VMS is Up and Running ✅"))
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	if r.ping != nil {
		if err := r.ping(req.Context()); err != nil {
			r.log.WithError(err).Error("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "backing store unreachable",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"build":  buildinfo.Current(),
	})
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		respondError(w, http.StatusNotFound, "Live events are disabled")
		return
	}
	websocket.ServeWs(r.hub, w, req)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
