// Package server assembles a lectern application from its configuration and
// serves it over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/books"
	"github.com/dekarrin/lectern/config"
	"github.com/dekarrin/lectern/dao"
	"github.com/dekarrin/lectern/internal/middle"
	"github.com/dekarrin/lectern/sequence"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is an HTTP REST server for the book service. The zero-value of a
// Server should not be used directly; call NewServer on an Environment to get
// one ready for use.
type Server struct {
	mtx     *sync.Mutex
	rtr     chi.Router
	closing bool
	serving bool
	closed  bool
	http    *http.Server
	cfg     config.Config // config that it was started with.

	log lectern.Logger // used for logging. if logging disabled, this will be set to a no-op logger

	root    *bind.Context
	store   dao.Connector
	metrics *prometheus.Registry
	seq     *sequence.Sequence
}

// Config returns the configuration that the server used during creation.
// Modifying the returned config will have no effect on the server.
func (s *Server) Config() config.Config {
	return s.cfg.FillDefaults()
}

// Sequence returns the Sequence that requests to operations are handled by.
func (s *Server) Sequence() *sequence.Sequence {
	return s.seq
}

// Bindings returns the root binding context of the application.
func (s *Server) Bindings() *bind.Context {
	return s.root
}

// Handler returns the root http.Handler of the server, with every route
// mounted.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// RoutesIndex returns a human-readable formatted string that lists all routes
// and methods currently available in the server.
func (s *Server) RoutesIndex() string {
	routeMethods := map[string][]string{}

	chi.Walk(s.routes(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routeMethods[route] = append(routeMethods[route], method)
		return nil
	})

	// alphabetize the routes
	allRoutes := []string{}
	for name := range routeMethods {
		allRoutes = append(allRoutes, name)
	}
	sort.Strings(allRoutes)

	// write the sorted routes
	var sb strings.Builder
	for _, r := range allRoutes {
		sb.WriteString("* ")
		sb.WriteString(r)
		sb.WriteString(" - ")

		meths := routeMethods[r]
		sort.Strings(meths)
		sb.WriteString(strings.Join(meths, ", "))
		sb.WriteRune('\n')
	}

	return strings.TrimSpace(sb.String())
}

// routes builds the router on first call and returns the same one after.
func (s *Server) routes() chi.Router {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.rtr != nil {
		return s.rtr
	}

	root := chi.NewRouter()
	root.Use(middle.DontPanic(s.log))
	root.NotFound(s.endpoint(func(req *http.Request) lectern.Result {
		return lectern.NotFound()
	}))
	root.MethodNotAllowed(s.endpoint(func(req *http.Request) lectern.Result {
		return lectern.MethodNotAllowed(req)
	}))

	root.Get("/ping", s.seq.Handler(sequence.Static(KeyOpPing, http.StatusOK)))
	root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	// make server base router
	r := root
	if s.cfg.URIBase != "/" {
		r = chi.NewRouter()
		r.NotFound(root.NotFoundHandler())
		r.MethodNotAllowed(root.MethodNotAllowedHandler())
		root.Mount(s.cfg.URIBase, r)
	}

	r.Route("/books", func(r chi.Router) {
		if len(s.cfg.TokenSecret) > 0 {
			r.Use(middle.RequireToken(s.cfg.TokenSecret, s.log))
		}

		isbnPath := "/" + lectern.PathParam("isbn:num")

		r.Post("/", s.seq.Handler(createBookTarget))
		r.Get("/", s.seq.Handler(sequence.Static(books.KeyOpList, http.StatusOK)))
		r.Get(isbnPath, s.seq.Handler(getBookTarget))
		r.Put(isbnPath, s.seq.Handler(updateBookTarget))
		r.Patch(isbnPath, s.seq.Handler(updateBookTarget))
		r.Delete(isbnPath, s.seq.Handler(deleteBookTarget))
	})

	s.rtr = root
	return root
}

// endpoint returns a handler that writes and logs the Result of ep.
func (s *Server) endpoint(ep func(req *http.Request) lectern.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r := ep(req)
		r.WriteResponse(w)
		s.log.LogResult(req, r)
	}
}

// ServeForever begins listening on the server's configured address and port for
// HTTP REST client requests.
//
// This function will block until the server is stopped. If it returns as a
// result of Shutdown being called elsewhere, it will return
// http.ErrServerClosed.
func (s *Server) ServeForever() (err error) {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return fmt.Errorf("server has been shut down")
	}
	if s.serving {
		s.mtx.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.serving = true
	s.mtx.Unlock()

	// calling into user code, do a panic check
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while running server: %v", r)
		}
	}()

	rtr := s.routes()

	s.mtx.Lock()
	s.http = &http.Server{Addr: s.cfg.Listen(), Handler: rtr}
	srv := s.http
	s.mtx.Unlock()

	defer func() {
		s.mtx.Lock()
		s.closing = false
		s.serving = false
		s.mtx.Unlock()
	}()

	s.log.Infof("%s listening on %s", s.cfg.AppName, s.cfg.Listen())
	return srv.ListenAndServe()
}

// Shutdown shuts down the server gracefully, first closing the HTTP server to
// new connections and then closing the root binding context and the store.
// This will cause ServeForever to return in any goroutine that is blocking on
// it. If ctx is canceled while the HTTP server is shutting down, the store is
// closed without waiting for in-flight requests.
//
// Shutdown may be called on a server that was never started, to release its
// store. Once Shutdown returns, the Server should not be used again.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closing {
		return fmt.Errorf("close already in-progress in another goroutine")
	}
	if s.closed {
		return fmt.Errorf("server has already been shut down")
	}
	s.closing = true
	s.closed = true

	var errs []error

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop HTTP server: %w", err))
		}
		s.http = nil
	}

	if err := s.root.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bindings: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.log.Infof("%s shut down", s.cfg.AppName)
	return errors.Join(errs...)
}
