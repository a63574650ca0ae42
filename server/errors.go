package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/rustyeddy/gateway/broker"
)

type errorBody struct {
	Error    string           `json:"error"`
	Kind     broker.Kind      `json:"kind"`
	Upstream any              `json:"upstream,omitempty"`
	Attempts []broker.Attempt `json:"attempts,omitempty"`
}

// StatusFor maps an error kind to the HTTP status returned to the caller.
func StatusFor(k broker.Kind) int {
	switch k {
	case broker.KindNotFound:
		return http.StatusNotFound
	case broker.KindAuthentication:
		return http.StatusUnauthorized
	case broker.KindAccountNotConfigured:
		return http.StatusUnprocessableEntity
	case broker.KindInvalidRequest, broker.KindUpstreamRejection:
		return http.StatusBadRequest
	case broker.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case broker.KindShapeMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error, attempts []broker.Attempt) {
	body := errorBody{Error: err.Error(), Kind: broker.KindOf(err), Attempts: attempts}
	if body.Kind == "" {
		body.Kind = "internal"
	}

	var be *broker.Error
	if errors.As(err, &be) && len(be.Body) > 0 {
		var v any
		if json.Unmarshal(be.Body, &v) == nil {
			body.Upstream = v
		} else {
			body.Upstream = string(be.Body)
		}
	}
	c.JSON(StatusFor(body.Kind), body)
}

func invalid(c *gin.Context, msg string) {
	writeError(c, broker.NewError(broker.KindInvalidRequest, msg), nil)
}
