package handlers

import (
	"errors"
	"net/http"

	"hive/internal/domain"
	"hive/internal/http/middleware"
	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	resp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}
	reqID := middleware.GetRequestID(c)
	if reqID != "" {
		c.JSON(status, gin.H{
			"error":      resp.Error,
			"code":       resp.Code,
			"details":    resp.Details,
			"request_id": reqID,
			"message":    message,
		})
		return
	}
	c.JSON(status, resp)
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), validationDetails(err))
	case domain.IsUnauthorized(err):
		respondError(c, http.StatusUnauthorized, "unauthenticated", err.Error(), nil)
	case domain.IsForbidden(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil)
	case domain.IsSearchUnavailable(err):
		utils.L().Warn("search unavailable", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		c.Header("Retry-After", "5")
		respondError(c, http.StatusServiceUnavailable, "search_unavailable",
			"search is temporarily unavailable, please retry", gin.H{"retryable": true})
	default:
		utils.L().Error("request failed", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal_error", "something went wrong", nil)
	}
}

func validationDetails(err error) any {
	var ve domain.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		return gin.H{"field": ve.Field}
	}
	return nil
}
