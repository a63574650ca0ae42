package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/gateway"
)

const callerKey = "gateway.caller"

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
		if acct := c.Param("account"); acct != "" {
			entry = entry.WithField("account", acct)
		}
		switch {
		case c.Writer.Status() >= 500:
			entry.Warn("request failed")
		case c.Request.URL.Path == "/healthz":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}

// requireCaller rejects requests without a user id and stores the Caller.
func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if user == "" {
			writeError(c, broker.NewError(broker.KindAuthentication, "missing "+UserHeader+" header"), nil)
			c.Abort()
			return
		}
		c.Set(callerKey, gateway.Caller{UserID: user, AccountRef: c.Param("account")})
		c.Next()
	}
}

func callerFrom(c *gin.Context) gateway.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(gateway.Caller)
	return caller
}
