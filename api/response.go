package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"listing-api/models"
	"listing-api/storage"
	"listing-api/utils"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// respondDomainError maps an error returned by a use case onto an HTTP status.
// Anything it does not recognise is logged and reported as a 500 without detail.
func respondDomainError(c *gin.Context, log *utils.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{
			Message: verr.Error(),
			Code:    "validation_error",
			Field:   verr.Field,
		}})
	case errors.Is(err, models.ErrListingNotFound):
		respondError(c, http.StatusNotFound, "listing_not_found", err.Error())
	case storage.IsConstraintViolation(err):
		log.Warnw("constraint violation", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusConflict, "constraint_violation", "request conflicts with stored data")
	default:
		log.Errorw("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
