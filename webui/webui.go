// Package webui is the read-only HTTP inspection surface over C9.
// Grounded on the teacher's webui/webui.go (a *manners.GracefulServer
// wrapping a bare ServeHTTP dispatcher), generalized to route through
// github.com/gocraft/web's Router instead of a hand-rolled if/else on
// r.URL.Path -- the teacher's own go.mod already requires gocraft/web for
// exactly this job.
package webui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/braintree/manners"
	"github.com/gocraft/web"
	"github.com/gomodule/redigo/redis"
	"github.com/wallester/exq"
)

// Context is the gocraft/web per-request context. It carries nothing of
// its own; the handler it dispatches to is a closure over a *Server.
type Context struct{}

// Server is C9's HTTP surface: /queues, /scheduled, /retries, /dead,
// /dead/:jid, /processes, /worker_pools and /stats, each rendering one
// Inspect query as JSON.
type Server struct {
	namespace string
	pool      *redis.Pool
	inspect   *exq.Inspect
	hostPort  string
	router    *web.Router
	server    *manners.GracefulServer
	wg        sync.WaitGroup
}

// NewServer builds a webui Server over namespace/pool, matching the
// teacher's NewWebUIServer(namespace, pool, hostPort) constructor shape.
func NewServer(namespace string, pool *redis.Pool, hostPort string) *Server {
	s := &Server{
		namespace: namespace,
		pool:      pool,
		inspect:   exq.NewInspect(namespace, pool),
		hostPort:  hostPort,
		server:    manners.NewServer(),
	}

	router := web.New(Context{})
	router.Get("/queues", s.queues)
	router.Get("/scheduled", s.scheduled)
	router.Get("/retries", s.retries)
	router.Get("/dead", s.dead)
	router.Get("/dead/:jid", s.deadByJid)
	router.Get("/processes", s.processes)
	router.Get("/worker_pools", s.workerPools)
	router.Get("/stats", s.stats)
	s.router = router

	s.server.Addr = hostPort
	s.server.Handler = router

	return s
}

// Start runs the server in its own goroutine, matching the teacher's
// Start/Stop split backed by braintree/manners for graceful shutdown.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.server.ListenAndServe()
	}()
}

// Stop signals a graceful shutdown and waits for the listener to close.
func (s *Server) Stop() {
	s.server.Close()
	s.wg.Wait()
}

func (s *Server) queues(rw web.ResponseWriter, r *web.Request) {
	qs, err := s.inspect.Queues()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, qs)
}

func (s *Server) scheduled(rw web.ResponseWriter, r *web.Request) {
	jobs, err := s.inspect.ScheduledJobs()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, jobs)
}

func (s *Server) retries(rw web.ResponseWriter, r *web.Request) {
	jobs, err := s.inspect.RetryJobs()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, jobs)
}

func (s *Server) dead(rw web.ResponseWriter, r *web.Request) {
	jobs, err := s.inspect.DeadJobs()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, jobs)
}

func (s *Server) deadByJid(rw web.ResponseWriter, r *web.Request) {
	jid := r.PathParams["jid"]
	job, err := s.inspect.FindFailedByJid(jid)
	if err != nil {
		renderError(rw, err)
		return
	}
	if job == nil {
		renderNotFound(rw)
		return
	}
	renderJSON(rw, job)
}

func (s *Server) processes(rw web.ResponseWriter, r *web.Request) {
	procs, err := s.inspect.Processes()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, procs)
}

func (s *Server) workerPools(rw web.ResponseWriter, r *web.Request) {
	pools, err := s.inspect.WorkerPools()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, pools)
}

func (s *Server) stats(rw web.ResponseWriter, r *web.Request) {
	processed, err := s.inspect.ProcessedCount()
	if err != nil {
		renderError(rw, err)
		return
	}
	failed, err := s.inspect.FailedCount()
	if err != nil {
		renderError(rw, err)
		return
	}
	renderJSON(rw, map[string]int{"processed": processed, "failed": failed})
}

func renderJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	jsonData, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		renderError(rw, err)
		return
	}
	rw.Write(jsonData)
}

func renderNotFound(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(404)
	fmt.Fprintf(rw, `{"error": "not_found"}`)
}

func renderError(rw http.ResponseWriter, err error) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(500)
	fmt.Fprintf(rw, `{"error": "%s"}`, err.Error())
}
