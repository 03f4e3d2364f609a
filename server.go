package ddprofiler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

const gracefulShutdownTimeout = 10 * time.Second

// TaskQueue is the part of the Conductor the online server uses.
type TaskQueue interface {
	Submitter
	Stats() Stats
}

// TaskAccepted is the reply to an accepted submission
type TaskAccepted struct {
	Kind   ddtask.Kind `json:"kind"`
	Source string      `json:"source"`
	Queued int         `json:"queued"`
}

func (TaskAccepted) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

// ErrorReply is the reply to a rejected request
type ErrorReply struct {
	Status int    `json:"-"`
	Error  string `json:"error"`
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

// Server accepts task submissions over HTTP.
type Server struct {
	queue      TaskQueue
	httpServer *http.Server
}

// NewServer creates a Server submitting to queue and listening on addr.
func NewServer(addr string, queue TaskQueue) *Server {
	s := &Server{queue: queue}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router of the Server.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Post("/v1/tasks", s.submitTask)
	router.Get("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, s.queue.Stats())
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "ok")
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var spec ddtask.Spec
	if err := render.DecodeJSON(r.Body, &spec); err != nil {
		_ = render.Render(w, r, ErrorReply{Status: http.StatusBadRequest, Error: err.Error()})
		return
	}
	d, err := spec.Descriptor()
	if err != nil {
		_ = render.Render(w, r, ErrorReply{Status: http.StatusBadRequest, Error: err.Error()})
		return
	}
	if err := s.queue.Submit(d); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		_ = render.Render(w, r, ErrorReply{Status: status, Error: err.Error()})
		return
	}

	log.WithField("request", middleware.GetReqID(r.Context())).Debugf("Accepted %s task for %s", d.Kind(), d.Source())
	_ = render.Render(w, r, TaskAccepted{
		Kind:   d.Kind(),
		Source: d.Source(),
		Queued: s.queue.Stats().Queued,
	})
}

// Run serves requests until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Serving on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		err := s.httpServer.Shutdown(ctxTimeout)
		log.Info("Server terminated")
		return err
	})
	return g.Wait()
}
