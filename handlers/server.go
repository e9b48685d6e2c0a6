package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type engineService interface {
	Status() domain.EngineStatus
	SetPaused(paused bool)
}

type serverLogger interface {
	Panic(args ...interface{})
}

// Server is the operational endpoint: inspect the engine and pause or
// resume quoting without restarting the process.
type Server struct {
	engine engineService
	logger serverLogger
}

func NewServer(engine engineService, serverLogger serverLogger) *Server {
	return &Server{
		engine: engine,
		logger: serverLogger,
	}
}

// Serve listens on addr in the background.
func (server *Server) Serve(addr string) {
	go func() {
		server.logger.Panic(http.ListenAndServe(addr, server.Routes()))
	}()
}

func (server *Server) Routes() chi.Router {
	root := chi.NewRouter()

	root.Use(middleware.Logger)
	root.Get("/status", server.status)
	root.Post("/pause", server.pause)
	root.Post("/resume", server.resume)

	return root
}

func (server *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(server.engine.Status()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (server *Server) pause(w http.ResponseWriter, r *http.Request) {
	server.engine.SetPaused(true)
	w.WriteHeader(http.StatusOK)
}

func (server *Server) resume(w http.ResponseWriter, r *http.Request) {
	server.engine.SetPaused(false)
	w.WriteHeader(http.StatusOK)
}
