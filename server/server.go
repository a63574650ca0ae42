// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/gateway"
)

// Gateway is the service the handlers drive.
type Gateway interface {
	PlaceOrder(ctx context.Context, c gateway.Caller, o broker.OrderIntent) (broker.PlaceResult, error)
	ClosePosition(ctx context.Context, c gateway.Caller, positionID string, volume float64) (broker.ExecResult, error)
	CloseAll(ctx context.Context, c gateway.Caller) (broker.CloseAllResult, error)
	ModifyPosition(ctx context.Context, c gateway.Caller, req broker.ModifyRequest) (broker.ExecResult, error)
	ListTrades(ctx context.Context, c gateway.Caller) (broker.TradeListing, error)
}

// UserHeader carries the caller identity set by the authenticating proxy.
const UserHeader = "X-User-ID"

type Server struct {
	gw      Gateway
	log     logrus.FieldLogger
	origins []string
}

// New builds a Server. With no allowed origins the router is served
// without CORS handling.
func New(gw Gateway, log logrus.FieldLogger, origins []string) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{gw: gw, log: log, origins: origins}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	acct := r.Group("/api/accounts/:account", requireCaller())
	acct.POST("/orders", s.handlePlaceOrder)
	acct.POST("/positions/close-all", s.handleCloseAll)
	acct.DELETE("/positions/:id", s.handleClosePosition)
	acct.PUT("/positions/:id", s.handleModifyPosition)
	acct.GET("/trades", s.handleListTrades)

	if len(s.origins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", UserHeader},
	}).Handler(r)
}
