package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"xdao.co/origin/model"
	"xdao.co/origin/proof"
)

type errorBody struct {
	Error string     `json:"error"`
	Kind  model.Kind `json:"kind"`
}

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAlreadyRegistered:
		return http.StatusConflict
	case model.KindNotConfigured:
		return http.StatusServiceUnavailable
	case model.KindCodec:
		return http.StatusUnprocessableEntity
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response and stops the handler chain. Only the
// structured message reaches the client; causes go to the access log.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorBody{
			Error: fmt.Sprintf("file exceeds the %d byte upload limit", tooLarge.Limit),
			Kind:  model.KindValidation,
		})
		return
	}
	e := proof.Classify(err)
	c.AbortWithStatusJSON(statusFor(e.Kind), errorBody{Error: e.Message, Kind: e.Kind})
}
