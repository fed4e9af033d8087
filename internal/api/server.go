package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/formcoach/formcheck/internal/analysis"
	"github.com/formcoach/formcheck/internal/journal"
)

// Analyzer runs one analysis request to completion.
type Analyzer interface {
	Analyze(ctx context.Context, sub analysis.Submission, tracker analysis.Tracker) (*analysis.Outcome, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	BindAddr       string
	Analyzer       Analyzer
	Journal        *journal.Recorder
	Logger         *slog.Logger
	StartTime      time.Time
	APIToken       string
	MaxInlineBytes int64
	HardMaxBytes   int64
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.BindAddr, fmt.Sprint(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Requests block for the whole poll budget.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
