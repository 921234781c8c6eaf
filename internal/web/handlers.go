package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
)

var startTime = time.Now()

type PlaceOrderRequest struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Side       string  `json:"side" validate:"required,oneof=buy sell"`
	Type       string  `json:"type" validate:"required,oneof=market limit stop"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Price      float64 `json:"price" validate:"omitempty,gt=0"`
	StopPrice  float64 `json:"stopPrice" validate:"omitempty,gt=0"`
	Leverage   int     `json:"leverage" validate:"omitempty,gte=1"`
	TakeProfit float64 `json:"takeProfit" validate:"omitempty,gt=0"`
	StopLoss   float64 `json:"stopLoss" validate:"omitempty,gt=0"`
}

func formatValidationError(err error) map[string]string {
	errors := make(map[string]string)
	for _, e := range err.(validator.ValidationErrors) {
		errors[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	return errors
}

func (s *Server) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Welcome to the Report Server!",
		"status":    "Server is running successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// POST /order
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"validation_errors": formatValidationError(err)})
		return
	}

	order, err := s.book.Place(domain.Order{
		Symbol:     req.Symbol,
		Side:       domain.Side(req.Side),
		Kind:       domain.OrderKind(req.Type),
		Quantity:   req.Quantity,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Leverage:   req.Leverage,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("order placed",
		zap.String("id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Kind)))

	c.JSON(http.StatusCreated, order)
}

// GET /order/list
func (s *Server) handleListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.book.List())
}

// GET /order/positions
func (s *Server) handleListPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.positions.List())
}

// DELETE /order/:orderId
func (s *Server) handleCancelOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	s.book.Cancel(orderID)
	c.JSON(http.StatusOK, gin.H{"cancelled": orderID})
}

// DELETE /order
func (s *Server) handleClearOrders(c *gin.Context) {
	s.book.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// GET /history/trades?limit=N
func (s *Server) handleListFills(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	fills, err := s.history.ListFills(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list fills", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fills)
}

// GET /history/closures?limit=N
func (s *Server) handleListClosures(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	closures, err := s.history.ListClosures(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list closures", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, closures)
}
