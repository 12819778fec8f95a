package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

const ErrorUnmarshal = "Error while unmarshal"

// respondError is the single place domain errors become HTTP statuses.
func respondError(c *gin.Context, err error) {
	status, res := mapError(err)
	if status >= http.StatusInternalServerError {
		logger.GetLogger().WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, res)
}

func mapError(err error) (int, dto.Res) {
	res := dto.Res{ResponseMessage: err.Error()}

	var le *model.LinkError
	if errors.As(err, &le) {
		res.ResponseCode = le.Code
		res.Stage = string(le.Stage)
		if errors.Is(err, model.ErrUnsupported) {
			return http.StatusNotFound, res
		}
		return http.StatusBadRequest, res
	}
	var ae *model.AdError
	if errors.As(err, &ae) {
		res.ResponseCode = "ad_failed"
		res.Reason = ae.Reason
		if ae.Class == model.ErrorTransient {
			return http.StatusServiceUnavailable, res
		}
		return http.StatusBadGateway, res
	}

	switch {
	case errors.Is(err, model.ErrInvalidInput):
		res.ResponseCode = "invalid_input"
		return http.StatusBadRequest, res
	case errors.Is(err, model.ErrNotFound):
		res.ResponseCode = "not_found"
		return http.StatusNotFound, res
	case errors.Is(err, model.ErrNotConnected):
		res.ResponseCode = "not_connected"
		return http.StatusConflict, res
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrInvalidState):
		res.ResponseCode = "invalid_transition"
		return http.StatusConflict, res
	case errors.Is(err, model.ErrConflict):
		res.ResponseCode = "conflict"
		return http.StatusConflict, res
	case errors.Is(err, model.ErrUnsupported):
		res.ResponseCode = "unsupported"
		return http.StatusUnprocessableEntity, res
	case errors.Is(err, model.ErrForbidden):
		res.ResponseCode = "forbidden"
		return http.StatusForbidden, res
	}
	res.ResponseCode = "internal_error"
	res.ResponseMessage = "internal error"
	return http.StatusInternalServerError, res
}

func badRequest(c *gin.Context, err error) {
	logger.GetLogger().WithField("error", err).Warn(ErrorUnmarshal)
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.Res{ResponseCode: "invalid_input", ResponseMessage: err.Error()})
}

// networkParam resolves the :network path segment.
func networkParam(c *gin.Context) (model.Network, bool) {
	n, ok := model.ParseNetwork(c.Param("network"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, dto.Res{ResponseCode: "unsupported_network", ResponseMessage: "unknown network " + c.Param("network")})
	}
	return n, ok
}
