package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/risklevel"
	"trading-signalsv1/internal/signalcache"
)

// Querier is the engine surface the handlers need.
type Querier interface {
	Snapshot() *signalcache.Snapshot
	GetEntry(symbol string, tf model.Timeframe) (signalcache.Entry, error)
	GetSignal(symbol string, tf model.Timeframe) (model.Signal, error)
	GetRiskAssessment(symbol string, tf model.Timeframe) (model.RiskAssessment, error)
	GetRateLimiterStatus() model.RateLimiterStatus
	Levels(req risklevel.Request) (risklevel.Levels, error)
	Assess(ctx context.Context, req engine.AssessRequest) (engine.AssessResult, error)
}

// Handler serves the query API.
type Handler struct {
	q Querier
}

// NewHandler creates a Handler backed by q.
func NewHandler(q Querier) *Handler {
	return &Handler{q: q}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrCircuitOpen), errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), ErrorResponse{Error: model.ErrorKind(err), Message: err.Error()})
}

// pair reads ?symbol=&timeframe= from the query string.
func pair(c *gin.Context) (string, model.Timeframe, error) {
	symbol := c.Query("symbol")
	if symbol == "" {
		return "", "", fmt.Errorf("%w: symbol is required", model.ErrInvalidParameters)
	}
	tf, err := model.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		return "", "", err
	}
	return symbol, tf, nil
}

// normalize accepts timeframes and directions in any case.
func normalize(tf model.Timeframe, d model.Direction) (model.Timeframe, model.Direction, error) {
	t, err := model.ParseTimeframe(string(tf))
	if err != nil {
		return "", "", err
	}
	dir, err := model.ParseDirection(string(d))
	if err != nil {
		return "", "", err
	}
	return t, dir, nil
}

// ListSignals returns every entry in the current snapshot.
//
// GET /api/v1/signals
func (h *Handler) ListSignals(c *gin.Context) {
	c.JSON(http.StatusOK, newSignalsResponse(h.q.Snapshot()))
}

// GetSignal returns one pair's signal. With ?detail=true the assessment
// and indicator readings are included.
//
// GET /api/v1/signal?symbol=BTC/USDT&timeframe=1h
func (h *Handler) GetSignal(c *gin.Context) {
	symbol, tf, err := pair(c)
	if err != nil {
		abort(c, err)
		return
	}
	if c.Query("detail") == "true" {
		e, err := h.q.GetEntry(symbol, tf)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
		return
	}
	sig, err := h.q.GetSignal(symbol, tf)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// GetRisk returns one pair's Monte Carlo assessment.
//
// GET /api/v1/risk?symbol=BTC/USDT&timeframe=1h
func (h *Handler) GetRisk(c *gin.Context) {
	symbol, tf, err := pair(c)
	if err != nil {
		abort(c, err)
		return
	}
	risk, err := h.q.GetRiskAssessment(symbol, tf)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, risk)
}

// GetRateLimiter reports the gateway guard.
//
// GET /api/v1/ratelimiter
func (h *Handler) GetRateLimiter(c *gin.Context) {
	c.JSON(http.StatusOK, h.q.GetRateLimiterStatus())
}

// PostLevels computes stop-loss and take-profit for a posted entry.
//
// POST /api/v1/levels {"entry":"50000","direction":"LONG","timeframe":"1h"}
func (h *Handler) PostLevels(c *gin.Context) {
	var req risklevel.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, fmt.Errorf("%w: %v", model.ErrInvalidParameters, err))
		return
	}
	var err error
	if req.Timeframe, req.Direction, err = normalize(req.Timeframe, req.Direction); err != nil {
		abort(c, err)
		return
	}
	lv, err := h.q.Levels(req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, lv)
}

// PostAssess simulates a posted position against the pair's cached volatility.
//
// POST /api/v1/assess {"symbol":"BTC/USDT","timeframe":"1h","direction":"SHORT","entry":"51000"}
func (h *Handler) PostAssess(c *gin.Context) {
	var req engine.AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, fmt.Errorf("%w: %v", model.ErrInvalidParameters, err))
		return
	}
	var err error
	if req.Timeframe, req.Direction, err = normalize(req.Timeframe, req.Direction); err != nil {
		abort(c, err)
		return
	}
	res, err := h.q.Assess(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
