package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ekurt/funding_curve/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	feeds   *FeedStore
	catalog *usecase.InstrumentCatalog
	monitor *usecase.Monitor
	logger  *zap.Logger
}

func NewServer(
	port int,
	feeds *FeedStore,
	catalog *usecase.InstrumentCatalog,
	monitor *usecase.Monitor,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		feeds:   feeds,
		catalog: catalog,
		monitor: monitor,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Feeds
	s.router.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.router.HandleFunc("GET /api/prices", s.handlePrices)
	s.router.HandleFunc("GET /api/rates", s.handleRates)
	s.router.HandleFunc("GET /api/curve", s.handleCurve)
	s.router.HandleFunc("GET /api/accrual", s.handleAccrual)
	s.router.HandleFunc("GET /api/top", s.handleTopYields)

	// Catalog
	s.router.HandleFunc("GET /api/underlyings", s.handleUnderlyings)
	s.router.HandleFunc("GET /api/contracts", s.handleContracts)

	// Basket selection
	s.router.HandleFunc("POST /api/basket", s.handleSelectBasket)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
