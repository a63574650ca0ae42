package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/gateway/broker"
)

type orderRequest struct {
	Symbol     string   `json:"symbol" binding:"required"`
	Side       string   `json:"side" binding:"required"`
	Type       string   `json:"type"`
	Volume     float64  `json:"volume" binding:"required,gt=0"`
	Price      float64  `json:"price"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, err.Error())
		return
	}
	side, err := broker.ParseSide(req.Side)
	if err != nil {
		invalid(c, err.Error())
		return
	}
	kind, err := broker.ParseOrderKind(req.Type)
	if err != nil {
		invalid(c, err.Error())
		return
	}

	res, err := s.gw.PlaceOrder(c.Request.Context(), callerFrom(c), broker.OrderIntent{
		Symbol:     req.Symbol,
		Side:       side,
		Volume:     req.Volume,
		Kind:       kind,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var volume float64
	if v := c.Query("volume"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			invalid(c, "volume must be a non-negative number")
			return
		}
		volume = f
	}

	res, err := s.gw.ClosePosition(c.Request.Context(), callerFrom(c), c.Param("id"), volume)
	if err != nil {
		writeError(c, err, res.Attempts)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCloseAll(c *gin.Context) {
	res, err := s.gw.CloseAll(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

type modifyRequest struct {
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	Volume     float64 `json:"volume"`
}

func (s *Server) handleModifyPosition(c *gin.Context) {
	var req modifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, err.Error())
		return
	}
	if req.StopLoss == 0 && req.TakeProfit == 0 && req.Volume == 0 {
		invalid(c, "nothing to modify")
		return
	}

	res, err := s.gw.ModifyPosition(c.Request.Context(), callerFrom(c), broker.ModifyRequest{
		PositionID: c.Param("id"),
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Volume:     req.Volume,
	})
	if err != nil {
		writeError(c, err, res.Attempts)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListTrades(c *gin.Context) {
	res, err := s.gw.ListTrades(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}
