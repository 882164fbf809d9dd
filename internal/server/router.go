package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idxrun/idxrun/internal/history"
	"github.com/idxrun/idxrun/internal/lockfile"
)

// Router provides embeddable read-only HTTP handlers for run status.
// Endpoints:
//
//	GET {basePath}/healthz
//	GET {basePath}/status      lock holder plus the most recent run
//	GET {basePath}/history     query: limit=N (default 20)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	lockPath string
	store    RecentStore
	basePath string
}

// RecentStore lists finished runs, newest first. The SQL history sink
// implements it; write-only sinks do not.
type RecentStore interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// NewRouter constructs a Router. store may be nil when no queryable
// history backend is configured.
func NewRouter(lockPath string, store RecentStore, basePath string) *Router {
	return &Router{lockPath: lockPath, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	group.GET("/history", r.handleHistory)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

// Status reports the lock state and the latest finished run.
type Status struct {
	Locked  bool             `json:"locked"`
	Holder  *lockfile.Holder `json:"holder,omitempty"`
	LastRun *history.Record  `json:"last_run,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleStatus(c *gin.Context) {
	var st Status
	if holder, err := lockfile.ReadHolder(r.lockPath); err == nil {
		st.Locked = true
		st.Holder = &holder
	}
	if r.store != nil {
		recs, err := r.store.Recent(c.Request.Context(), 1)
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		if len(recs) > 0 {
			st.LastRun = &recs[0]
		}
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.store == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "no queryable history backend configured"})
		return
	}
	limit := 20
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := r.store.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, recs)
}
