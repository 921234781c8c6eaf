package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"github.com/Shining-Code/TradingGPT-report/internal/usecase"
)

type Server struct {
	router    *gin.Engine
	server    *http.Server
	book      *usecase.OrderBook
	positions *usecase.PositionManager
	history   domain.TradeRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewServer(
	port int,
	book *usecase.OrderBook,
	positions *usecase.PositionManager,
	history domain.TradeRepository,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		book:      book,
		positions: positions,
		history:   history,
		validator: validator.New(),
		logger:    logger,
	}
	s.router.Use(gin.Recovery())
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.GET("/", s.handleWelcome)
	s.router.GET("/health", s.handleHealth)

	// Orders
	s.router.POST("/order", s.handlePlaceOrder)
	s.router.GET("/order/list", s.handleListOrders)
	s.router.GET("/order/positions", s.handleListPositions)
	s.router.DELETE("/order/:orderId", s.handleCancelOrder)
	s.router.DELETE("/order", s.handleClearOrders)

	// History
	s.router.GET("/history/trades", s.handleListFills)
	s.router.GET("/history/closures", s.handleListClosures)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})
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
